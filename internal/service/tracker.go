package service

import (
	"context"

	"battle-tracker/internal/domain"
	"battle-tracker/internal/stats"
	"battle-tracker/internal/telemetry"

	"github.com/rs/zerolog"
)

type committer interface {
	Schedule()
}

// Tracker turns telemetry events into engine mutations and schedules a
// commit after each durable change.
type Tracker struct {
	engine  *stats.Engine
	session *SessionState
	commits committer
	logger  zerolog.Logger
}

func NewTracker(src telemetry.Source, engine *stats.Engine, session *SessionState, coordinator *SyncCoordinator, logger zerolog.Logger) *Tracker {
	return newTracker(src, engine, session, coordinator, logger)
}

func newTracker(src telemetry.Source, engine *stats.Engine, session *SessionState, commits committer, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		engine:  engine,
		session: session,
		commits: commits,
		logger:  logger.With().Str("component", "tracker").Logger(),
	}
	telemetry.Handle(src, telemetry.KindHangar, t.onHangar)
	telemetry.Handle(src, telemetry.KindHangarVehicle, t.onHangarVehicle)
	telemetry.Handle(src, telemetry.KindPlatoon, t.onPlatoon)
	telemetry.Handle(src, telemetry.KindPlatoonSlots, t.onPlatoonSlots)
	telemetry.Handle(src, telemetry.KindBattle, t.onBattle)
	telemetry.Handle(src, telemetry.KindArena, t.onArena)
	telemetry.Handle(src, telemetry.KindFeedback, t.onFeedback)
	telemetry.Handle(src, telemetry.KindBattleResult, t.onBattleResult)
	return t
}

func (t *Tracker) Session() domain.Session {
	return t.session.Get()
}

func (t *Tracker) onHangar(_ context.Context, ev telemetry.HangarStatus) error {
	if !ev.InHangar {
		return nil
	}
	playerID := ev.PlayerID.String()
	if playerID == "" {
		return domain.NewValidationError("playerId", "missing")
	}
	s := t.session.Update(func(s *domain.Session) { s.PlayerID = playerID })

	if t.engine.OnHangarEntered(playerID, ev.PlayerName, s.InPlatoon) {
		t.logger.Info().Str("player_id", playerID).Str("name", ev.PlayerName).Msg("player registered")
		t.commits.Schedule()
	}
	return nil
}

func (t *Tracker) onHangarVehicle(_ context.Context, ev telemetry.HangarVehicle) error {
	vehicle := ev.LocalizedShortName
	if vehicle == "" {
		vehicle = domain.UnknownVehicle
	}
	t.session.Update(func(s *domain.Session) { s.Vehicle = vehicle })
	return nil
}

func (t *Tracker) onPlatoon(_ context.Context, ev telemetry.PlatoonStatus) error {
	t.session.Update(func(s *domain.Session) { s.InPlatoon = ev.InPlatoon })
	return nil
}

func (t *Tracker) onPlatoonSlots(_ context.Context, ev telemetry.PlatoonSlots) error {
	ids := make([]string, 0, len(ev.DBID))
	for _, id := range ev.DBID {
		if id != "" {
			ids = append(ids, id.String())
		}
	}
	t.session.Update(func(s *domain.Session) { s.PlatoonIDs = ids })
	return nil
}

func (t *Tracker) onBattle(_ context.Context, ev telemetry.BattleStatus) error {
	if !ev.InBattle || ev.ArenaID == "" {
		return nil
	}
	s := t.session.Update(func(s *domain.Session) { s.ArenaID = ev.ArenaID.String() })

	if err := t.engine.OnBattleStarted(s.ArenaID, s.PlayerID, s.Vehicle); err != nil {
		return err
	}
	t.logger.Info().Str("arena_id", s.ArenaID).Str("player_id", s.PlayerID).Msg("battle started")
	t.commits.Schedule()
	return nil
}

func (t *Tracker) onArena(_ context.Context, ev telemetry.ArenaInfo) error {
	if ev.ArenaID == "" {
		return domain.NewValidationError("arenaId", "missing")
	}
	s := t.session.Update(func(s *domain.Session) { s.ArenaID = ev.ArenaID.String() })

	name := ev.PlayerName
	if name == "" {
		name, _ = t.engine.PlayerName(s.PlayerID)
	}
	if err := t.engine.OnArenaInfo(s.ArenaID, ev.LocalizedName, s.PlayerID, s.Vehicle, name); err != nil {
		return err
	}
	t.commits.Schedule()
	return nil
}

func (t *Tracker) onFeedback(_ context.Context, ev telemetry.Feedback) error {
	s := t.session.Get()

	switch ev.Type {
	case "damage":
		if ev.Data == nil {
			return domain.NewValidationError("feedback.data", "missing damage")
		}
		if err := t.engine.OnDamageDealt(s.ArenaID, s.PlayerID, ev.Data.Damage); err != nil {
			return err
		}
	case "kill":
		if err := t.engine.OnKill(s.ArenaID, s.PlayerID); err != nil {
			return err
		}
	default:
		return nil
	}
	t.commits.Schedule()
	return nil
}

func (t *Tracker) onBattleResult(_ context.Context, ev domain.BattleResult) error {
	s := t.session.Get()
	if s.PlayerID == "" {
		return domain.NewValidationError("battleResult", "no current player")
	}
	if err := t.engine.OnBattleResult(s.PlayerID, &ev); err != nil {
		return err
	}
	t.commits.Schedule()
	return nil
}
