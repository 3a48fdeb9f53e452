package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"battle-tracker/internal/domain"
	"battle-tracker/internal/stats"
	"battle-tracker/internal/telemetry"

	"github.com/bmizerany/assert"
	"github.com/rs/zerolog"
)

type countingCommitter struct {
	n atomic.Int32
}

func (c *countingCommitter) Schedule() { c.n.Add(1) }

type trackerFixture struct {
	hub     *telemetry.Hub
	engine  *stats.Engine
	tracker *Tracker
	commits *countingCommitter
}

func newTrackerFixture() *trackerFixture {
	logger := zerolog.New(io.Discard)
	f := &trackerFixture{
		hub:     telemetry.NewHub(logger),
		engine:  stats.NewEngineWithScoring(stats.NewScoring(1000), logger),
		commits: &countingCommitter{},
	}
	f.tracker = newTracker(f.hub, f.engine, NewSessionState(), f.commits, logger)
	return f
}

func (f *trackerFixture) send(t *testing.T, kind telemetry.Kind, payload string) error {
	t.Helper()
	return f.hub.Dispatch(context.Background(), telemetry.Envelope{Type: kind, Data: json.RawMessage(payload)})
}

func (f *trackerFixture) mustSend(t *testing.T, kind telemetry.Kind, payload string) {
	t.Helper()
	if err := f.send(t, kind, payload); err != nil {
		t.Fatalf("dispatch %s: %v", kind, err)
	}
}

func TestTrackerBattleFlow(t *testing.T) {
	f := newTrackerFixture()

	f.mustSend(t, telemetry.KindHangar, `{"inHangar": true, "playerId": 1001, "playerName": "alpha"}`)
	f.mustSend(t, telemetry.KindHangarVehicle, `{"localizedShortName": "T-34"}`)
	f.mustSend(t, telemetry.KindBattle, `{"inBattle": true, "arenaId": "777"}`)
	f.mustSend(t, telemetry.KindArena, `{"arenaId": "777", "localizedName": "Ensk"}`)
	f.mustSend(t, telemetry.KindFeedback, `{"type": "damage", "data": {"damage": 250}}`)
	f.mustSend(t, telemetry.KindFeedback, `{"type": "damage", "data": {"damage": 150}}`)
	f.mustSend(t, telemetry.KindFeedback, `{"type": "kill"}`)
	f.mustSend(t, telemetry.KindFeedback, `{"type": "spotted"}`)
	f.mustSend(t, telemetry.KindBattleResult, `{
		"arenaUniqueID": 777,
		"common": {"duration": 412, "winnerTeam": 1},
		"players": {"1001": {"team": 1}},
		"vehicles": {"v1": [{"accountDBID": 1001, "damageDealt": 380, "kills": 1, "vehicleName": "T-34"}]}
	}`)

	b, ok := f.engine.Battle("777")
	assert.T(t, ok)
	assert.Equal(t, "Ensk", b.MapName)
	assert.Equal(t, domain.OutcomeWin, b.Win)
	assert.Equal(t, 412, b.Duration)

	p := b.Players["1001"]
	assert.Equal(t, "alpha", p.Name)
	assert.Equal(t, "T-34", p.Vehicle)
	assert.Equal(t, 400, p.Damage)
	assert.Equal(t, 1, p.Kills)
	assert.Equal(t, 800, p.Points)

	// hangar, battle, arena, two damage, kill, result
	assert.Equal(t, int32(7), f.commits.n.Load())

	s := f.tracker.Session()
	assert.Equal(t, "1001", s.PlayerID)
	assert.Equal(t, "777", s.ArenaID)
}

func TestTrackerHangarRegistersOnce(t *testing.T) {
	f := newTrackerFixture()

	f.mustSend(t, telemetry.KindHangar, `{"inHangar": true, "playerId": "1001", "playerName": "alpha"}`)
	f.mustSend(t, telemetry.KindHangar, `{"inHangar": true, "playerId": "1001", "playerName": "alpha"}`)
	f.mustSend(t, telemetry.KindHangar, `{"inHangar": false}`)

	name, ok := f.engine.PlayerName("1001")
	assert.T(t, ok)
	assert.Equal(t, "alpha", name)
	assert.Equal(t, int32(1), f.commits.n.Load())
}

func TestTrackerPlatoonState(t *testing.T) {
	f := newTrackerFixture()

	f.mustSend(t, telemetry.KindPlatoon, `{"inPlatoon": true}`)
	f.mustSend(t, telemetry.KindPlatoonSlots, `{"dbid": [1001, null, "1002"]}`)

	s := f.tracker.Session()
	assert.T(t, s.InPlatoon)
	assert.Equal(t, []string{"1001", "1002"}, s.PlatoonIDs)
	assert.Equal(t, int32(0), f.commits.n.Load())
}

func TestTrackerRejectsIncompleteEvents(t *testing.T) {
	f := newTrackerFixture()
	var verr *domain.ValidationError

	err := f.send(t, telemetry.KindArena, `{"localizedName": "Ensk"}`)
	assert.T(t, errors.As(err, &verr))

	err = f.send(t, telemetry.KindBattleResult, `{"arenaUniqueID": 1, "common": {}, "players": {}, "vehicles": {}}`)
	assert.T(t, errors.As(err, &verr))

	f.mustSend(t, telemetry.KindHangar, `{"inHangar": true, "playerId": 1, "playerName": "alpha"}`)
	f.mustSend(t, telemetry.KindBattle, `{"inBattle": true, "arenaId": 5}`)
	err = f.send(t, telemetry.KindFeedback, `{"type": "damage"}`)
	assert.T(t, errors.As(err, &verr))

	err = f.send(t, telemetry.KindFeedback, `{"type": "damage", "data": {"damage": -3}}`)
	assert.T(t, errors.As(err, &verr))
}
