package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sprintpilot/sprintpilot/internal/config"
	"github.com/sprintpilot/sprintpilot/internal/domain"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id        TEXT PRIMARY KEY,
	email     TEXT UNIQUE NOT NULL,
	api_token TEXT UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS jira_configs (
	id               BIGSERIAL PRIMARY KEY,
	user_id          TEXT NOT NULL,
	domain           TEXT NOT NULL,
	email            TEXT NOT NULL,
	api_token        TEXT NOT NULL,
	selected_project TEXT NOT NULL DEFAULT '',
	selected_board   BIGINT NOT NULL DEFAULT 0,
	is_active        BOOLEAN NOT NULL DEFAULT TRUE,
	last_used        TIMESTAMPTZ,
	UNIQUE (user_id, domain)
);
CREATE TABLE IF NOT EXISTS ai_configs (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL,
	engine      TEXT NOT NULL,
	credentials TEXT NOT NULL,
	UNIQUE (user_id, engine)
);
CREATE TABLE IF NOT EXISTS conversations (
	id          BIGSERIAL PRIMARY KEY,
	user_id     TEXT NOT NULL,
	project_key TEXT NOT NULL,
	board_id    BIGINT NOT NULL,
	messages    JSONB NOT NULL DEFAULT '[]'::jsonb,
	UNIQUE (user_id, project_key, board_id)
);
CREATE TABLE IF NOT EXISTS sprint_snapshots (
	id        BIGSERIAL PRIMARY KEY,
	board_id  BIGINT NOT NULL,
	sprint_id BIGINT NOT NULL,
	progress  INT NOT NULL,
	deviation INT NOT NULL,
	taken_at  TIMESTAMPTZ NOT NULL
);`

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, schema)
	return err
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
	return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil {
		return errors.New("advisory unlock returned false")
	}
	return err
}

// ResolveUserToken maps an opaque API token to a user id. Token issuance
// itself lives outside this service.
func (r *Repository) ResolveUserToken(ctx context.Context, token string) (string, error) {
	var id string
	err := r.db.Pool.QueryRow(ctx, "SELECT id FROM users WHERE api_token=$1", token).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: unknown token", domain.ErrNotFound)
	}
	return id, err
}

// GetActiveJiraConfig returns the user's most recently used active tracker
// config, or nil when the user has none.
func (r *Repository) GetActiveJiraConfig(ctx context.Context, userID string) (*domain.JiraConfig, error) {
	const q = `
		SELECT user_id, domain, email, api_token, selected_project, selected_board, is_active, last_used
		FROM jira_configs
		WHERE user_id=$1 AND is_active
		ORDER BY last_used DESC NULLS LAST
		LIMIT 1`
	var c domain.JiraConfig
	err := r.db.Pool.QueryRow(ctx, q, userID).Scan(
		&c.UserID, &c.Domain, &c.Email, &c.APIToken, &c.SelectedProject, &c.SelectedBoard, &c.Active, &c.LastUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ListJiraConfigs(ctx context.Context, userID string) ([]domain.JiraConfig, error) {
	const q = `
		SELECT user_id, domain, email, api_token, selected_project, selected_board, is_active, last_used
		FROM jira_configs
		WHERE user_id=$1 AND is_active
		ORDER BY domain`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JiraConfig
	for rows.Next() {
		var c domain.JiraConfig
		if err := rows.Scan(&c.UserID, &c.Domain, &c.Email, &c.APIToken,
			&c.SelectedProject, &c.SelectedBoard, &c.Active, &c.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertJiraConfig creates or refreshes the config for (user, domain) and
// marks it active. The unique constraint keeps one record per pair.
func (r *Repository) UpsertJiraConfig(ctx context.Context, c domain.JiraConfig) error {
	const q = `
		INSERT INTO jira_configs(user_id, domain, email, api_token, selected_project, selected_board, is_active, last_used)
		VALUES($1,$2,$3,$4,$5,$6,TRUE,now())
		ON CONFLICT (user_id, domain) DO UPDATE SET
			email=EXCLUDED.email,
			api_token=EXCLUDED.api_token,
			selected_project=EXCLUDED.selected_project,
			selected_board=EXCLUDED.selected_board,
			is_active=TRUE,
			last_used=now()`
	_, err := r.db.Pool.Exec(ctx, q, c.UserID, c.Domain, c.Email, c.APIToken, c.SelectedProject, c.SelectedBoard)
	return err
}

func (r *Repository) DeleteJiraConfigs(ctx context.Context, userID string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, "UPDATE jira_configs SET is_active=FALSE WHERE user_id=$1 AND is_active", userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) GetAIConfig(ctx context.Context, userID, engine string) (*domain.AIConfig, error) {
	var c domain.AIConfig
	err := r.db.Pool.QueryRow(ctx,
		"SELECT user_id, engine, credentials FROM ai_configs WHERE user_id=$1 AND engine=$2",
		userID, engine).Scan(&c.UserID, &c.Engine, &c.Credentials)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) UpsertAIConfig(ctx context.Context, c domain.AIConfig) error {
	const q = `
		INSERT INTO ai_configs(user_id, engine, credentials)
		VALUES($1,$2,$3)
		ON CONFLICT (user_id, engine) DO UPDATE SET credentials=EXCLUDED.credentials`
	_, err := r.db.Pool.Exec(ctx, q, c.UserID, c.Engine, c.Credentials)
	return err
}

// LoadConversation returns the last limit messages for the key, oldest first.
// Older deployments stored each append as a nested list; the reader flattens
// any such shape so callers always see a flat ordered log.
func (r *Repository) LoadConversation(ctx context.Context, userID, projectKey string, boardID int64, limit int) ([]domain.Message, error) {
	var raw []byte
	err := r.db.Pool.QueryRow(ctx,
		"SELECT messages FROM conversations WHERE user_id=$1 AND project_key=$2 AND board_id=$3",
		userID, projectKey, boardID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, err := flattenMessages(raw)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// AppendMessages appends to the conversation log, creating the record on
// first use. Concurrent appends for the same key are last-write-wins at the
// row level; there is no optimistic concurrency control here, which is an
// accepted consistency gap.
func (r *Repository) AppendMessages(ctx context.Context, userID, projectKey string, boardID int64, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO conversations(user_id, project_key, board_id, messages)
		VALUES($1,$2,$3,$4::jsonb)
		ON CONFLICT (user_id, project_key, board_id) DO UPDATE SET
			messages = conversations.messages || EXCLUDED.messages`
	_, err = r.db.Pool.Exec(ctx, q, userID, projectKey, boardID, b)
	return err
}

func (r *Repository) InsertSnapshot(ctx context.Context, s domain.SprintSnapshot) error {
	_, err := r.db.Pool.Exec(ctx,
		"INSERT INTO sprint_snapshots(board_id, sprint_id, progress, deviation, taken_at) VALUES($1,$2,$3,$4,$5)",
		s.BoardID, s.SprintID, s.Progress, s.Deviation, s.TakenAt)
	return err
}

func (r *Repository) ListSnapshots(ctx context.Context, boardID, sprintID int64, limit int) ([]domain.SprintSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		SELECT board_id, sprint_id, progress, deviation, taken_at
		FROM sprint_snapshots
		WHERE board_id=$1 AND sprint_id=$2
		ORDER BY taken_at DESC
		LIMIT $3`
	rows, err := r.db.Pool.Query(ctx, q, boardID, sprintID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SprintSnapshot
	for rows.Next() {
		var s domain.SprintSnapshot
		if err := rows.Scan(&s.BoardID, &s.SprintID, &s.Progress, &s.Deviation, &s.TakenAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListSnapshotTargets returns the active configs that have a board selected,
// across all users; used by the snapshot cron job.
func (r *Repository) ListSnapshotTargets(ctx context.Context) ([]domain.JiraConfig, error) {
	const q = `
		SELECT user_id, domain, email, api_token, selected_project, selected_board, is_active, last_used
		FROM jira_configs
		WHERE is_active AND selected_board > 0`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JiraConfig
	for rows.Next() {
		var c domain.JiraConfig
		if err := rows.Scan(&c.UserID, &c.Domain, &c.Email, &c.APIToken,
			&c.SelectedProject, &c.SelectedBoard, &c.Active, &c.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// flattenMessages decodes a jsonb message array, recursing into nested
// arrays left behind by the legacy storage shape.
func flattenMessages(raw []byte) ([]domain.Message, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	var out []domain.Message
	for _, e := range elems {
		t := bytes.TrimSpace(e)
		if len(t) > 0 && t[0] == '[' {
			nested, err := flattenMessages(t)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		var m domain.Message
		if err := json.Unmarshal(t, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
