package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
)

// Repository provides PostgreSQL-based data access for users, lift records
// and password reset tokens. All methods acquire a pooled connection for the
// duration of one call; nothing holds a connection across operations.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations. This is the only place schema
// DDL lives; request handlers assume the schema already exists.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username VARCHAR(64) PRIMARY KEY,
			password_hash VARCHAR(255) NOT NULL,
			email VARCHAR(255) UNIQUE,
			display_name VARCHAR(255) NOT NULL,
			flag VARCHAR(8) NOT NULL,
			team VARCHAR(255) NOT NULL DEFAULT 'Independent',
			weight NUMERIC(6,2),
			gender VARCHAR(10),
			elo NUMERIC(12,2) NOT NULL DEFAULT 1000,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_login TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS prs (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(64) NOT NULL REFERENCES users(username) ON UPDATE CASCADE ON DELETE CASCADE,
			lift_type VARCHAR(16) NOT NULL,
			weight NUMERIC(6,2) NOT NULL,
			video_url TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS password_reset_tokens (
			id SERIAL PRIMARY KEY,
			username VARCHAR(64) UNIQUE NOT NULL,
			token_hash VARCHAR(255) NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prs_username ON prs(username)`,
		`CREATE INDEX IF NOT EXISTS idx_prs_username_type ON prs(username, lift_type, weight DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_users_elo ON users(elo DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_users_team ON users(team)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const userColumns = `username, display_name, COALESCE(email, ''), flag, team,
	COALESCE(weight, 0), COALESCE(gender, ''), elo, is_active, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.Username,
		&u.DisplayName,
		&u.Email,
		&u.Flag,
		&u.Team,
		&u.Bodyweight,
		&u.Gender,
		&u.Elo,
		&u.IsActive,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user. Uniqueness of username and email is checked
// explicitly so conflicts map to distinct domain errors.
func (r *Repository) CreateUser(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.User, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, req.Username).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if exists {
		return nil, domain.ErrUsernameTaken
	}

	if req.Email != "" {
		err = r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, req.Email).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking email: %w", err)
		}
		if exists {
			return nil, domain.ErrEmailTaken
		}
	}

	query := `
		INSERT INTO users (username, password_hash, email, display_name, flag, team, gender)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query,
		req.Username, passwordHash, req.Email, req.DisplayName, req.Flag, req.Team, string(req.Gender)))
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// GetUser retrieves an active user by username
func (r *Repository) GetUser(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND is_active = TRUE`
	user, err := scanUser(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// GetCredentials retrieves an active user together with their password hash
func (r *Repository) GetCredentials(ctx context.Context, username string) (*domain.User, string, error) {
	query := `SELECT password_hash, ` + userColumns + ` FROM users WHERE username = $1 AND is_active = TRUE`
	var hash string
	var u domain.User
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&hash,
		&u.Username,
		&u.DisplayName,
		&u.Email,
		&u.Flag,
		&u.Team,
		&u.Bodyweight,
		&u.Gender,
		&u.Elo,
		&u.IsActive,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", domain.ErrUserNotFound
		}
		return nil, "", fmt.Errorf("getting credentials: %w", err)
	}
	return &u, hash, nil
}

// TouchLastLogin records a successful login
func (r *Repository) TouchLastLogin(ctx context.Context, username string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET last_login = $1 WHERE username = $2`, time.Now(), username)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// ListEligibleUsers returns users that can appear on the DOTS leaderboard:
// positive bodyweight and a gender set, optionally narrowed by exact gender
// and country filters.
func (r *Repository) ListEligibleUsers(ctx context.Context, gender domain.Gender, country string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE is_active = TRUE AND weight IS NOT NULL AND weight > 0 AND gender IS NOT NULL`
	args := []any{}

	if gender.Valid() {
		args = append(args, string(gender))
		query += fmt.Sprintf(" AND gender = $%d", len(args))
	}
	if country != "" {
		args = append(args, country)
		query += fmt.Sprintf(" AND flag = $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing eligible users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListTeamUsers returns active users with a non-empty team, for team standings
func (r *Repository) ListTeamUsers(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE is_active = TRUE AND team IS NOT NULL AND team != ''`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing team users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListTeamMembers returns the members of one team ordered by ELO descending
func (r *Repository) ListTeamMembers(ctx context.Context, team string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE is_active = TRUE AND team = $1 ORDER BY elo DESC, username ASC`
	rows, err := r.pool.Query(ctx, query, team)
	if err != nil {
		return nil, fmt.Errorf("listing team members: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListTopByElo returns the highest-ELO active users
func (r *Repository) ListTopByElo(ctx context.Context, limit int) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE is_active = TRUE ORDER BY elo DESC, username ASC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing top by elo: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListUsernames returns every active username; used by the reconcile worker
func (r *Repository) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT username FROM users WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("listing usernames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning username: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetAllElo returns the stored ELO for every active user, for mirror rebuilds
func (r *Repository) GetAllElo(ctx context.Context) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT username, elo FROM users WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("getting all elo: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var username string
		var elo float64
		if err := rows.Scan(&username, &elo); err != nil {
			return nil, fmt.Errorf("scanning elo: %w", err)
		}
		scores[username] = elo
	}
	return scores, rows.Err()
}

func collectUsers(rows pgx.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		var u domain.User
		err := rows.Scan(
			&u.Username,
			&u.DisplayName,
			&u.Email,
			&u.Flag,
			&u.Team,
			&u.Bodyweight,
			&u.Gender,
			&u.Elo,
			&u.IsActive,
			&u.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateProfile updates team, bodyweight, gender and optionally the username.
// A rename cascades to the prs table within the same transaction so the
// foreign history never points at a stale name.
func (r *Repository) UpdateProfile(ctx context.Context, req *domain.UpdateProfileRequest) (*domain.User, error) {
	if req.Username != req.NewUsername {
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, req.NewUsername).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking new username: %w", err)
		}
		if exists {
			return nil, domain.ErrUsernameTaken
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE users
		SET username = $1, team = $2, weight = NULLIF($3, 0), gender = $4
		WHERE username = $5
		RETURNING ` + userColumns
	user, err := scanUser(tx.QueryRow(ctx, query,
		req.NewUsername, req.Team, req.Bodyweight, string(req.Gender), req.Username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	if req.Username != req.NewUsername {
		if _, err := tx.Exec(ctx,
			`UPDATE prs SET username = $1 WHERE username = $2`, req.NewUsername, req.Username); err != nil {
			return nil, fmt.Errorf("cascading rename to records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing profile update: %w", err)
	}
	return user, nil
}

// SetElo persists a recomputed ELO score. The whole recompute is a single
// read-all, compute, single-write sequence, so a cancelled request leaves
// either the old or the new value, never a partial one.
func (r *Repository) SetElo(ctx context.Context, username string, elo float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET elo = $1 WHERE username = $2`, elo, username)
	if err != nil {
		return fmt.Errorf("setting elo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces a user's password hash
func (r *Repository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1 WHERE username = $2`, passwordHash, username)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

const recordColumns = `id, username, lift_type, weight, COALESCE(video_url, ''), created_at`

func scanRecord(row pgx.Row) (*domain.LiftRecord, error) {
	var rec domain.LiftRecord
	err := row.Scan(&rec.ID, &rec.Username, &rec.LiftType, &rec.Weight, &rec.ProofURL, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertLiftRecord persists a new PR
func (r *Repository) InsertLiftRecord(ctx context.Context, req *domain.SubmitRecordRequest) (*domain.LiftRecord, error) {
	query := `
		INSERT INTO prs (username, lift_type, weight, video_url)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING ` + recordColumns
	rec, err := scanRecord(r.pool.QueryRow(ctx, query,
		req.Username, string(req.LiftType), req.Weight, req.ProofURL))
	if err != nil {
		return nil, fmt.Errorf("inserting lift record: %w", err)
	}
	return rec, nil
}

// UpdateLiftRecord edits lift type and weight of an existing record. The
// ownership check lives in the WHERE clause: a record belonging to someone
// else is indistinguishable from a missing one.
func (r *Repository) UpdateLiftRecord(ctx context.Context, id int64, req *domain.EditRecordRequest) (*domain.LiftRecord, error) {
	query := `
		UPDATE prs SET lift_type = $1, weight = $2
		WHERE id = $3 AND username = $4
		RETURNING ` + recordColumns
	rec, err := scanRecord(r.pool.QueryRow(ctx, query,
		string(req.LiftType), req.Weight, id, req.Username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("updating lift record: %w", err)
	}
	return rec, nil
}

// DeleteLiftRecord removes a record owned by username and returns its proof
// URL so the caller can clean up stored media.
func (r *Repository) DeleteLiftRecord(ctx context.Context, id int64, username string) (string, error) {
	var proofURL string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM prs WHERE id = $1 AND username = $2 RETURNING COALESCE(video_url, '')`,
		id, username).Scan(&proofURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrRecordNotFound
		}
		return "", fmt.Errorf("deleting lift record: %w", err)
	}
	return proofURL, nil
}

// GetLiftHistory returns a user's full lift history, newest first
func (r *Repository) GetLiftHistory(ctx context.Context, username string) ([]domain.LiftRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM prs WHERE username = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("getting lift history: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// GetProgress returns the chronological weight series for one lift type
func (r *Repository) GetProgress(ctx context.Context, username string, liftType domain.LiftType) ([]domain.ProgressPoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT weight, created_at FROM prs WHERE username = $1 AND lift_type = $2 ORDER BY created_at ASC`,
		username, string(liftType))
	if err != nil {
		return nil, fmt.Errorf("getting progress: %w", err)
	}
	defer rows.Close()

	points := []domain.ProgressPoint{}
	for rows.Next() {
		var p domain.ProgressPoint
		if err := rows.Scan(&p.Weight, &p.Date); err != nil {
			return nil, fmt.Errorf("scanning progress point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetRecentVideos returns the newest records carrying a proof URL
func (r *Repository) GetRecentVideos(ctx context.Context, limit int) ([]domain.LiftRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM prs
		WHERE video_url IS NOT NULL AND video_url != ''
		ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("getting recent videos: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]domain.LiftRecord, error) {
	records := []domain.LiftRecord{}
	for rows.Next() {
		var rec domain.LiftRecord
		err := rows.Scan(&rec.ID, &rec.Username, &rec.LiftType, &rec.Weight, &rec.ProofURL, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FindUserForReset locates a user by username or email for a password reset.
// Returns the canonical username and email.
func (r *Repository) FindUserForReset(ctx context.Context, identifier string) (string, string, error) {
	var username, email string
	err := r.pool.QueryRow(ctx,
		`SELECT username, COALESCE(email, '') FROM users
		 WHERE (username = $1 OR email = $1) AND is_active = TRUE`,
		identifier).Scan(&username, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", domain.ErrUserNotFound
		}
		return "", "", fmt.Errorf("finding user for reset: %w", err)
	}
	return username, email, nil
}

// UpsertResetToken stores a hashed reset token, replacing any previous one
func (r *Repository) UpsertResetToken(ctx context.Context, username, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO password_reset_tokens (username, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username)
		DO UPDATE SET token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at
	`
	if _, err := r.pool.Exec(ctx, query, username, tokenHash, expiresAt, time.Now()); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken resolves an unexpired token hash to a username and
// deletes it so it cannot be replayed.
func (r *Repository) ConsumeResetToken(ctx context.Context, tokenHash string) (string, error) {
	var username string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM password_reset_tokens
		 WHERE token_hash = $1 AND expires_at > NOW()
		 RETURNING username`,
		tokenHash).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrBadResetToken
		}
		return "", fmt.Errorf("consuming reset token: %w", err)
	}
	return username, nil
}
