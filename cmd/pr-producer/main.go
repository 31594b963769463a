package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// Submission mirrors the PR message format the consumer expects
type Submission struct {
	Username string  `json:"username"`
	LiftType string  `json:"lift_type"`
	Weight   float64 `json:"weight"`
	ProofURL string  `json:"proof_url,omitempty"`
}

var lifterPrefixes = []string{
	"Iron", "Steel", "Granite", "Atlas", "Hercules", "Titan", "Diesel", "Tank", "Bear", "Moose",
	"Viking", "Spartan", "Brick", "Anvil", "Hammer", "Boulder", "Rhino", "Bison", "Ox", "Mammoth",
	"Flex", "Grip", "Rack", "Plate", "Chalk", "Belt", "Rep", "Spot", "Lock", "Brace",
}

var liftTypes = []string{"bench", "squat", "deadlift"}

// weightFor returns a plausible kilo load for a lift type
func weightFor(liftType string) float64 {
	switch liftType {
	case "bench":
		return float64(rand.Intn(120) + 60)
	case "squat":
		return float64(rand.Intn(160) + 80)
	default: // deadlift
		return float64(rand.Intn(180) + 100)
	}
}

func getLifterName(idx int) string {
	prefixIdx := idx % len(lifterPrefixes)
	suffix := idx/len(lifterPrefixes) + 1
	return fmt.Sprintf("%s%d", lifterPrefixes[prefixIdx], suffix)
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "gymrank-prs", "Kafka topic")
	totalLifters := flag.Int("lifters", 500, "Number of distinct lifters to emit PRs for")
	updatesPerSecond := flag.Int("rate", 50, "PR submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🏋️ GymRank PR Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:       %s\n", *brokers)
	fmt.Printf("  Topic:         %s\n", *topic)
	fmt.Printf("  Lifters:       %d\n", *totalLifters)
	fmt.Printf("  PRs/sec:       %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Lifters must already be registered; unknown usernames are dropped by the consumer")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendMessage := func(submission Submission) {
		data, err := json.Marshal(submission)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(submission.Username),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	interval := time.Second / time.Duration(*updatesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var prCount int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			// 70% of PRs come from the most active fifth of the gym
			var lifterIdx int
			active := *totalLifters / 5
			if active > 0 && rand.Intn(100) < 70 {
				lifterIdx = rand.Intn(active)
			} else {
				lifterIdx = rand.Intn(*totalLifters)
			}

			liftType := liftTypes[rand.Intn(len(liftTypes))]
			submission := Submission{
				Username: getLifterName(lifterIdx),
				LiftType: liftType,
				Weight:   weightFor(liftType),
			}
			sendMessage(submission)
			atomic.AddInt64(&prCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] PRs: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&prCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
