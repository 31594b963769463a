package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymrank/internal/domain"
)

func TestValidChannel(t *testing.T) {
	for _, channel := range []string{ChannelDots, ChannelElo, ChannelTeams} {
		assert.True(t, validChannel(channel), channel)
	}
	for _, channel := range []string{"", "wilks", "DOTS", "all"} {
		assert.False(t, validChannel(channel), channel)
	}
}

func TestHubDeliversRankingUpdateToSubscribers(t *testing.T) {
	hub := NewHub(slog.Default())
	go hub.Run()
	defer hub.Stop()

	subscriber := NewClient(hub, nil, slog.Default())
	bystander := NewClient(hub, nil, slog.Default())
	hub.Register(subscriber)
	hub.Register(bystander)
	hub.Subscribe(subscriber, ChannelDots)

	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount(ChannelDots) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, hub.GetTotalConnections())

	hub.BroadcastRankingUpdate(ChannelDots, []domain.LeaderboardEntry{{Username: "lifter"}})

	select {
	case raw := <-subscriber.send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, MessageTypeRankingUpdate, msg.Type)
		assert.Equal(t, ChannelDots, msg.Channel)
	case <-time.After(time.Second):
		t.Fatal("no ranking update delivered")
	}

	select {
	case raw := <-bystander.send:
		t.Fatalf("unsubscribed client received %s", raw)
	default:
	}
}
