package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"battle-tracker/internal/api"
	"battle-tracker/internal/api/remotetest"
	"battle-tracker/internal/config"
	"battle-tracker/internal/database"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/events"
	"battle-tracker/internal/repository"
	"battle-tracker/internal/stats"

	"github.com/rs/zerolog"
)

const testKey = "squad1"

type fixture struct {
	cfg       *config.Config
	remote    *remotetest.Server
	engine    *stats.Engine
	bus       *events.Bus
	session   *SessionState
	snapshots *repository.SnapshotRepository
	sync      *SyncCoordinator
	query     *QueryService
	transfer  *TransferService
	emitted   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, name)
}

func (l *eventLog) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == name {
			n++
		}
	}
	return n
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)

	remote := remotetest.NewServer()
	t.Cleanup(remote.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "state.db"), logger)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		AccessKey:        testKey,
		AllowedKeys:      []string{testKey},
		RemoteBaseURL:    remote.URL,
		PointsPerTeamWin: 1000,
		SyncReloadDelay:  time.Millisecond,
		Location:         time.UTC,
	}

	f := &fixture{
		cfg:       cfg,
		remote:    remote,
		engine:    stats.NewEngine(cfg, logger),
		bus:       events.NewBus(logger),
		session:   NewSessionState(),
		snapshots: repository.NewSnapshotRepository(db, logger),
		emitted:   &eventLog{},
	}
	f.engine.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	f.sync = NewSyncCoordinator(AccessKey(testKey), cfg, api.NewRemoteClient(cfg), f.engine, f.bus, f.snapshots, f.session, logger)
	f.query = NewQueryService(cfg, f.engine, f.bus, logger)
	f.transfer = NewTransferService(f.engine, f.sync, f.bus, logger)

	for _, name := range []string{"statsUpdated", "filtersApplied", "battleDeleted", "dataImported"} {
		f.bus.On(name, func(any) { f.emitted.add(name) })
	}
	return f
}

func (f *fixture) commit(t *testing.T) {
	t.Helper()
	if err := f.sync.Commit(context.Background()); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func battleAt(start time.Time, win domain.BattleOutcome, mapName string, players map[string]*domain.PlayerRecord) *domain.BattleRecord {
	return &domain.BattleRecord{
		StartTime: start.UnixMilli(),
		Duration:  300,
		Win:       win,
		MapName:   mapName,
		Players:   players,
	}
}
