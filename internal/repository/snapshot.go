package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"battle-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// SnapshotRepository keeps the last committed local state so a restart does
// not begin empty. It is never authoritative over the remote store.
type SnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:     sqlDB,
		logger: logger,
	}
}

type StoredSnapshot struct {
	AccessKey string
	Revision  string
	Snapshot  domain.Snapshot
	Session   domain.Session
	UpdatedAt time.Time
}

func (r *SnapshotRepository) Save(ctx context.Context, accessKey string, snap domain.Snapshot, session domain.Session) (string, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sess, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	revision, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate nanoid: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO snapshots (access_key, revision, payload, session, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(access_key) DO UPDATE SET
			revision = excluded.revision,
			payload = excluded.payload,
			session = excluded.session,
			updated_at = excluded.updated_at`,
		accessKey, revision, string(payload), string(sess), time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	r.logger.Debug().
		Str("access_key", accessKey).
		Str("revision", revision).
		Int("battles", len(snap.Battles)).
		Msg("local snapshot saved")
	return revision, nil
}

// Load returns nil without error when nothing was stored for accessKey.
func (r *SnapshotRepository) Load(ctx context.Context, accessKey string) (*StoredSnapshot, error) {
	var (
		out     StoredSnapshot
		payload string
		session string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT access_key, revision, payload, session, updated_at FROM snapshots WHERE access_key = ?`,
		accessKey,
	).Scan(&out.AccessKey, &out.Revision, &payload, &session, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &out.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", out.Revision, err)
	}
	if err := json.Unmarshal([]byte(session), &out.Session); err != nil {
		r.logger.Warn().Err(err).Str("revision", out.Revision).Msg("failed to decode session, ignoring")
		out.Session = domain.Session{}
	}
	for _, b := range out.Snapshot.Battles {
		if b != nil && b.Players == nil {
			b.Players = map[string]*domain.PlayerRecord{}
		}
	}
	return &out, nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, accessKey string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE access_key = ?`, accessKey); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
