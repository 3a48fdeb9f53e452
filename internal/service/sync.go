package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"battle-tracker/internal/api"
	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/events"
	"battle-tracker/internal/repository"
	"battle-tracker/internal/stats"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SyncCoordinator commits local state to the remote store with a
// save, short delay, reload round trip. Round trips for the access key run
// one at a time; a reload never overwrites a mutation made while it was in
// flight.
type SyncCoordinator struct {
	key         string
	remote      api.RemoteStore
	engine      *stats.Engine
	bus         *events.Bus
	snapshots   *repository.SnapshotRepository
	session     *SessionState
	reloadDelay time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	kick    chan struct{}
	cancel  context.CancelFunc
	workers *errgroup.Group
}

func NewSyncCoordinator(
	key AccessKey,
	cfg *config.Config,
	remote api.RemoteStore,
	engine *stats.Engine,
	bus *events.Bus,
	snapshots *repository.SnapshotRepository,
	session *SessionState,
	logger zerolog.Logger,
) *SyncCoordinator {
	return &SyncCoordinator{
		key:         string(key),
		remote:      remote,
		engine:      engine,
		bus:         bus,
		snapshots:   snapshots,
		session:     session,
		reloadDelay: cfg.SyncReloadDelay,
		logger:      logger.With().Str("component", "sync").Logger(),
		kick:        make(chan struct{}, 1),
	}
}

func (c *SyncCoordinator) AccessKey() string { return c.key }

// Commit pushes the full local snapshot, waits, and reloads the
// authoritative copy. Errors are logged and returned; local state is kept.
func (c *SyncCoordinator) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, version := c.engine.Snapshot()
	playerID := c.session.Get().PlayerID

	if err := c.remote.Save(ctx, c.key, snap, playerID); err != nil {
		c.logger.Error().Err(err).Int("battles", len(snap.Battles)).Msg("failed to save stats to remote")
		return err
	}

	if c.reloadDelay > 0 {
		timer := time.NewTimer(c.reloadDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := c.reloadLocked(ctx, version); err != nil {
		return err
	}

	c.logger.Debug().Int("battles", len(snap.Battles)).Uint64("version", version).Msg("commit completed")
	return nil
}

// Reload replaces local state with the remote copy.
func (c *SyncCoordinator) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloadLocked(ctx, c.engine.Version())
}

func (c *SyncCoordinator) reloadLocked(ctx context.Context, version uint64) error {
	remote, err := c.remote.Load(ctx, c.key)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load stats from remote")
		return err
	}

	if !c.engine.Replace(*remote, version) {
		c.logger.Debug().Msg("local state changed during round trip, keeping it for the next commit")
		c.Schedule()
	}

	c.bus.Emit(constants.EventStatsUpdated, c.engine.TeamTotals())
	c.persist(ctx)
	return nil
}

func (c *SyncCoordinator) persist(ctx context.Context) {
	if c.snapshots == nil {
		return
	}
	snap, _ := c.engine.Snapshot()
	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	if _, err := c.snapshots.Save(dbCtx, c.key, snap, c.session.Get()); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist local snapshot")
	}
}

// Restore seeds the engine from the locally persisted snapshot.
func (c *SyncCoordinator) Restore(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	stored, err := c.snapshots.Load(dbCtx, c.key)
	if err != nil {
		return err
	}
	if stored == nil {
		c.logger.Debug().Msg("no local snapshot to restore")
		return nil
	}
	c.engine.Replace(stored.Snapshot, c.engine.Version())
	c.session.Set(stored.Session)
	c.logger.Info().
		Str("revision", stored.Revision).
		Time("updated_at", stored.UpdatedAt).
		Int("battles", len(stored.Snapshot.Battles)).
		Msg("local snapshot restored")
	return nil
}

// DeleteBattle removes one battle remotely, then locally, then reloads.
func (c *SyncCoordinator) DeleteBattle(ctx context.Context, arenaID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.remote.DeleteBattle(ctx, c.key, arenaID); err != nil {
		c.logger.Error().Err(err).Str("arena_id", arenaID).Msg("failed to delete battle on remote")
		return err
	}
	removed := c.engine.RemoveBattle(arenaID)
	c.bus.Emit(constants.EventBattleDeleted, arenaID)
	c.logger.Info().Str("arena_id", arenaID).Bool("was_local", removed).Msg("battle deleted")

	return c.reloadLocked(ctx, c.engine.Version())
}

// Clear wipes the remote resource and the local state.
func (c *SyncCoordinator) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.remote.Clear(ctx, c.key); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear remote stats")
		return err
	}
	c.engine.Reset()
	c.bus.Emit(constants.EventStatsUpdated, c.engine.TeamTotals())

	if c.snapshots != nil {
		dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
		defer cancel()
		if err := c.snapshots.Delete(dbCtx, c.key); err != nil {
			c.logger.Warn().Err(err).Msg("failed to delete local snapshot")
		}
	}
	c.logger.Info().Msg("stats cleared")
	return nil
}

// Schedule requests a commit from the background worker. Requests made while
// one is pending collapse into it.
func (c *SyncCoordinator) Schedule() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *SyncCoordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.workers = new(errgroup.Group)
	c.workers.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-c.kick:
				if err := c.scheduledCommit(ctx); err != nil && !errors.Is(err, context.Canceled) {
					c.logger.Warn().Err(err).Msg("scheduled commit failed, local state kept")
				}
			}
		}
	})
	c.logger.Info().Msg("commit worker started")
}

func (c *SyncCoordinator) scheduledCommit(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("commit panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()
	return c.Commit(ctx)
}

func (c *SyncCoordinator) Stop() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	err := c.workers.Wait()
	c.logger.Info().Msg("commit worker stopped")
	return err
}
