package service

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
	"github.com/gymrank/internal/ranking"
)

type storedToken struct {
	username  string
	expiresAt time.Time
}

// fakeAccountRepo layers credentials and reset tokens over fakeRepo.
type fakeAccountRepo struct {
	*fakeRepo
	hashes map[string]string
	tokens map[string]storedToken // keyed by token hash
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		fakeRepo: newFakeRepo(),
		hashes:   make(map[string]string),
		tokens:   make(map[string]storedToken),
	}
}

func (r *fakeAccountRepo) CreateUser(_ context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.User, error) {
	if _, ok := r.users[req.Username]; ok {
		return nil, domain.ErrUsernameTaken
	}
	for _, u := range r.users {
		if req.Email != "" && u.Email == req.Email {
			return nil, domain.ErrEmailTaken
		}
	}
	user := domain.User{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Flag:        req.Flag,
		Team:        req.Team,
		Gender:      req.Gender,
		Elo:         1000,
		IsActive:    true,
	}
	r.users[req.Username] = user
	r.hashes[req.Username] = passwordHash
	return &user, nil
}

func (r *fakeAccountRepo) GetCredentials(ctx context.Context, username string) (*domain.User, string, error) {
	user, err := r.GetUser(ctx, username)
	if err != nil {
		return nil, "", err
	}
	return user, r.hashes[username], nil
}

func (r *fakeAccountRepo) TouchLastLogin(context.Context, string) error { return nil }

func (r *fakeAccountRepo) UpdateProfile(_ context.Context, req *domain.UpdateProfileRequest) (*domain.User, error) {
	user, ok := r.users[req.Username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if req.Username != req.NewUsername {
		if _, taken := r.users[req.NewUsername]; taken {
			return nil, domain.ErrUsernameTaken
		}
		delete(r.users, req.Username)
		r.hashes[req.NewUsername] = r.hashes[req.Username]
		delete(r.hashes, req.Username)
		for id, rec := range r.records {
			if rec.Username == req.Username {
				rec.Username = req.NewUsername
				r.records[id] = rec
			}
		}
	}
	user.Username = req.NewUsername
	user.Team = req.Team
	user.Bodyweight = req.Bodyweight
	user.Gender = req.Gender
	r.users[req.NewUsername] = user
	return &user, nil
}

func (r *fakeAccountRepo) FindUserForReset(_ context.Context, identifier string) (string, string, error) {
	for _, u := range r.users {
		if u.Username == identifier || (u.Email != "" && u.Email == identifier) {
			return u.Username, u.Email, nil
		}
	}
	return "", "", domain.ErrUserNotFound
}

func (r *fakeAccountRepo) UpsertResetToken(_ context.Context, username, tokenHash string, expiresAt time.Time) error {
	for hash, tok := range r.tokens {
		if tok.username == username {
			delete(r.tokens, hash)
		}
	}
	r.tokens[tokenHash] = storedToken{username: username, expiresAt: expiresAt}
	return nil
}

func (r *fakeAccountRepo) ConsumeResetToken(_ context.Context, tokenHash string) (string, error) {
	tok, ok := r.tokens[tokenHash]
	if !ok || time.Now().After(tok.expiresAt) {
		return "", domain.ErrBadResetToken
	}
	delete(r.tokens, tokenHash)
	return tok.username, nil
}

func (r *fakeAccountRepo) UpdatePassword(_ context.Context, username, passwordHash string) error {
	if _, ok := r.users[username]; !ok {
		return domain.ErrUserNotFound
	}
	r.hashes[username] = passwordHash
	return nil
}

type fakeMailer struct {
	resets []string // reset URLs, in send order
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, _, _, resetURL string) error {
	m.resets = append(m.resets, resetURL)
	return nil
}

func newAccountFixture() (*fakeAccountRepo, *fakeMailer, *AccountService) {
	repo := newFakeAccountRepo()
	mailer := &fakeMailer{}
	engine := ranking.NewEngine(repo.fakeRepo, nil, nil, &config.LeaderboardConfig{
		Mode: domain.RankingModeDOTS, DefaultLimit: 50, MaxLimit: 500, EloTopN: 10,
	}, slog.Default())
	svc := NewAccountService(repo, engine, mailer, &config.AuthConfig{
		BcryptCost:        bcrypt.MinCost,
		MinPasswordLength: 6,
		ResetTokenTTL:     time.Hour,
	}, "http://localhost:8080", slog.Default())
	return repo, mailer, svc
}

func register(t *testing.T, svc *AccountService, username, password, email string) *domain.User {
	t.Helper()
	user, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Username: username,
		Password: password,
		Email:    email,
		Flag:     "us",
		Gender:   domain.GenderMale,
	})
	require.NoError(t, err)
	return user
}

func TestRegisterDefaultsAndHashing(t *testing.T) {
	repo, _, svc := newAccountFixture()
	user := register(t, svc, "lifter", "hunter2x", "lifter@example.com")

	assert.Equal(t, "lifter", user.DisplayName, "display name defaults to username")
	assert.Equal(t, domain.DefaultTeam, user.Team)
	assert.Equal(t, 1000.0, user.Elo)

	hash := repo.hashes["lifter"]
	assert.NotEqual(t, "hunter2x", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2x")))
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	_, _, svc := newAccountFixture()
	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Username: "lifter", Password: "abc", Flag: "us", Gender: domain.GenderFemale,
	})
	assert.True(t, domain.IsValidationError(err))
}

func TestRegisterConflicts(t *testing.T) {
	_, _, svc := newAccountFixture()
	register(t, svc, "lifter", "hunter2x", "lifter@example.com")

	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Username: "lifter", Password: "hunter2x", Flag: "us", Gender: domain.GenderMale,
	})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	_, err = svc.Register(context.Background(), &domain.RegisterRequest{
		Username: "other", Password: "hunter2x", Email: "lifter@example.com",
		Flag: "us", Gender: domain.GenderMale,
	})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	_, _, svc := newAccountFixture()
	register(t, svc, "lifter", "hunter2x", "")

	user, err := svc.Login(context.Background(), "lifter", "hunter2x")
	require.NoError(t, err)
	assert.Equal(t, "lifter", user.Username)

	_, err = svc.Login(context.Background(), "lifter", "wrong")
	assert.ErrorIs(t, err, domain.ErrBadCredentials)

	// Unknown user is indistinguishable from a wrong password.
	_, err = svc.Login(context.Background(), "nobody", "hunter2x")
	assert.ErrorIs(t, err, domain.ErrBadCredentials)
}

func TestUpdateProfileRenameCascades(t *testing.T) {
	repo, _, svc := newAccountFixture()
	register(t, svc, "oldname", "hunter2x", "")
	repo.records[1] = domain.LiftRecord{ID: 1, Username: "oldname", LiftType: domain.LiftBench, Weight: 100}

	user, err := svc.UpdateProfile(context.Background(), &domain.UpdateProfileRequest{
		Username: "oldname", NewUsername: "newname",
		Team: "Alpha", Bodyweight: 82.5, Gender: domain.GenderMale,
	})
	require.NoError(t, err)

	assert.Equal(t, "newname", user.Username)
	assert.Equal(t, 82.5, user.Bodyweight)
	assert.Equal(t, "newname", repo.records[1].Username)

	// Login still works under the new name with the old password.
	_, err = svc.Login(context.Background(), "newname", "hunter2x")
	assert.NoError(t, err)
}

func TestPasswordResetRoundTrip(t *testing.T) {
	_, mailer, svc := newAccountFixture()
	register(t, svc, "lifter", "hunter2x", "lifter@example.com")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "lifter@example.com"))
	require.Len(t, mailer.resets, 1)

	_, token, found := strings.Cut(mailer.resets[0], "token=")
	require.True(t, found)

	require.NoError(t, svc.ResetPassword(context.Background(), token, "newpassword"))

	_, err := svc.Login(context.Background(), "lifter", "hunter2x")
	assert.ErrorIs(t, err, domain.ErrBadCredentials)
	_, err = svc.Login(context.Background(), "lifter", "newpassword")
	assert.NoError(t, err)

	// Tokens are single use.
	err = svc.ResetPassword(context.Background(), token, "anotherpassword")
	assert.ErrorIs(t, err, domain.ErrBadResetToken)
}

func TestPasswordResetDoesNotDiscloseAccounts(t *testing.T) {
	_, mailer, svc := newAccountFixture()

	// Unknown identifier: same outcome as a known one, no email sent.
	assert.NoError(t, svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, mailer.resets)
}

func TestResetPasswordRejectsBadToken(t *testing.T) {
	_, _, svc := newAccountFixture()
	err := svc.ResetPassword(context.Background(), "bogus", "newpassword")
	assert.ErrorIs(t, err, domain.ErrBadResetToken)
}
