package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"battle-tracker/internal/domain"

	"github.com/bmizerany/assert"
)

func TestCommitSavesThenReloads(t *testing.T) {
	f := newFixture(t)
	f.session.Set(domain.Session{PlayerID: "P1"})
	f.engine.OnHangarEntered("P1", "alpha", false)
	f.engine.OnDamageDealt("A1", "P1", 120)

	f.commit(t)

	stored, ok := f.remote.Get(testKey)
	assert.T(t, ok)
	assert.Equal(t, 120, stored.Battles["A1"].Players["P1"].Damage)
	assert.Equal(t, []string{"POST /battle-stats/squad1", "GET /battle-stats/squad1"}, f.remote.Requests())
	assert.Equal(t, 1, f.emitted.count("statsUpdated"))

	local, err := f.snapshots.Load(context.Background(), testKey)
	assert.Equal(t, nil, err)
	assert.Equal(t, 120, local.Snapshot.Battles["A1"].Players["P1"].Damage)
	assert.Equal(t, "P1", local.Session.PlayerID)
}

func TestCommitFoldsInConcurrentWriter(t *testing.T) {
	f := newFixture(t)
	f.engine.OnDamageDealt("A1", "P1", 50)
	f.commit(t)

	// a squad mate's client writes its own battle
	other, _ := f.remote.Get(testKey)
	other.Battles["B7"] = battleAt(time.Now(), domain.OutcomeWin, "Ensk", map[string]*domain.PlayerRecord{
		"P2": {Name: "bravo", Damage: 900, Points: 900, Vehicle: "KV-1"},
	})
	if other.Players == nil {
		other.Players = domain.PlayerDirectory{}
	}
	other.Players["P2"] = "bravo"
	f.remote.Put(testKey, other)

	assert.Equal(t, nil, f.sync.Reload(context.Background()))

	_, ok := f.engine.Battle("B7")
	assert.T(t, ok)
	name, _ := f.engine.PlayerName("P2")
	assert.Equal(t, "bravo", name)
}

func TestCommitFailureKeepsLocalState(t *testing.T) {
	f := newFixture(t)
	f.engine.OnDamageDealt("A1", "P1", 75)
	f.remote.Fail(http.MethodPost, http.StatusServiceUnavailable)

	err := f.sync.Commit(context.Background())

	var transient *domain.TransientError
	assert.T(t, errors.As(err, &transient))
	b, ok := f.engine.Battle("A1")
	assert.T(t, ok)
	assert.Equal(t, 75, b.Players["P1"].Damage)
	assert.Equal(t, 0, f.emitted.count("statsUpdated"))
}

func TestReloadFailureKeepsLocalState(t *testing.T) {
	f := newFixture(t)
	f.engine.OnDamageDealt("A1", "P1", 75)
	f.remote.Fail(http.MethodGet, http.StatusBadGateway)

	err := f.sync.Commit(context.Background())

	var transient *domain.TransientError
	assert.T(t, errors.As(err, &transient))
	_, ok := f.engine.Battle("A1")
	assert.T(t, ok)
}

func TestReloadDoesNotClobberNewerMutation(t *testing.T) {
	f := newFixture(t)
	_, version := f.engine.Snapshot()
	f.engine.OnDamageDealt("A1", "P1", 10)

	assert.Equal(t, nil, f.sync.reloadLocked(context.Background(), version))

	b, ok := f.engine.Battle("A1")
	assert.T(t, ok)
	assert.Equal(t, 10, b.Players["P1"].Damage)
	select {
	case <-f.sync.kick:
	default:
		t.Fatal("expected a follow-up commit to be scheduled")
	}
}

func TestScheduledCommitsRunInBackground(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sync.Start(ctx)

	f.engine.OnDamageDealt("A1", "P1", 10)
	f.sync.Schedule()
	f.sync.Schedule()

	deadline := time.Now().Add(5 * time.Second)
	for f.remote.Saves() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, nil, f.sync.Stop())
	assert.T(t, f.remote.Saves() >= 1)
	stored, _ := f.remote.Get(testKey)
	assert.Equal(t, 10, stored.Battles["A1"].Players["P1"].Damage)
}

func TestDeleteBattle(t *testing.T) {
	f := newFixture(t)
	f.engine.OnDamageDealt("A1", "P1", 10)
	f.engine.OnDamageDealt("A2", "P1", 20)
	f.commit(t)

	assert.Equal(t, nil, f.sync.DeleteBattle(context.Background(), "A1"))

	_, ok := f.engine.Battle("A1")
	assert.Equal(t, false, ok)
	_, ok = f.engine.Battle("A2")
	assert.T(t, ok)
	stored, _ := f.remote.Get(testKey)
	_, ok = stored.Battles["A1"]
	assert.Equal(t, false, ok)
	assert.Equal(t, 1, f.emitted.count("battleDeleted"))
}

func TestDeleteBattleFailureKeepsBattle(t *testing.T) {
	f := newFixture(t)
	f.engine.OnDamageDealt("A1", "P1", 10)
	f.remote.Fail(http.MethodDelete, http.StatusInternalServerError)

	err := f.sync.DeleteBattle(context.Background(), "A1")

	assert.NotEqual(t, nil, err)
	_, ok := f.engine.Battle("A1")
	assert.T(t, ok)
	assert.Equal(t, 0, f.emitted.count("battleDeleted"))
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	f.engine.OnHangarEntered("P1", "alpha", false)
	f.engine.OnDamageDealt("A1", "P1", 10)
	f.commit(t)

	assert.Equal(t, nil, f.sync.Clear(context.Background()))

	assert.Equal(t, 0, len(f.engine.Battles()))
	assert.Equal(t, 0, f.engine.PlayerCount())
	_, ok := f.remote.Get(testKey)
	assert.Equal(t, false, ok)
	local, err := f.snapshots.Load(context.Background(), testKey)
	assert.Equal(t, nil, err)
	assert.T(t, local == nil)
}

func TestRestoreFromLocalSnapshot(t *testing.T) {
	f := newFixture(t)
	f.session.Set(domain.Session{PlayerID: "P1", Vehicle: "T-34"})
	f.engine.OnHangarEntered("P1", "alpha", false)
	f.engine.OnDamageDealt("A1", "P1", 10)
	f.commit(t)

	f.engine.Reset()
	f.session.Set(domain.Session{})
	assert.Equal(t, nil, f.sync.Restore(context.Background()))

	_, ok := f.engine.Battle("A1")
	assert.T(t, ok)
	assert.Equal(t, "T-34", f.session.Get().Vehicle)
}

func TestReloadRejectsMalformedRemoteBody(t *testing.T) {
	f := newFixture(t)
	f.engine.OnDamageDealt("A1", "P1", 40)
	f.remote.SetLoadBody(`{"success":true,"BattleStats":{"A1":{"startTime":1,"duration":60,"win":1,"mapName":"Ensk","players":{"P1":null}}},"PlayerInfo":{}}`)

	err := f.sync.Reload(context.Background())

	var transient *domain.TransientError
	assert.T(t, errors.As(err, &transient))
	b, ok := f.engine.Battle("A1")
	assert.T(t, ok)
	assert.Equal(t, 40, b.Players["P1"].Damage)
	assert.Equal(t, 0, f.emitted.count("statsUpdated"))
}

func TestRestoreToleratesNullEntries(t *testing.T) {
	f := newFixture(t)
	snap := domain.Snapshot{
		Battles: map[string]*domain.BattleRecord{
			"A1": {Win: domain.OutcomeWin, Players: map[string]*domain.PlayerRecord{"P1": nil, "P2": {Name: "bravo", Damage: 5}}},
			"A2": nil,
		},
		Players: domain.PlayerDirectory{},
	}
	_, err := f.snapshots.Save(context.Background(), testKey, snap, domain.Session{})
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, f.sync.Restore(context.Background()))

	b, ok := f.engine.Battle("A1")
	assert.T(t, ok)
	assert.Equal(t, 1, len(b.Players))
	assert.Equal(t, 5, b.Players["P2"].Points)
	_, ok = f.engine.Battle("A2")
	assert.Equal(t, false, ok)
}
