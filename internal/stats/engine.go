package stats

import (
	"sort"
	"sync"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type Scoring struct {
	PerDamage int
	PerFrag   int
	TeamWin   int
}

func NewScoring(teamWin int) Scoring {
	return Scoring{
		PerDamage: constants.PointsPerDamage,
		PerFrag:   constants.PointsPerFrag,
		TeamWin:   teamWin,
	}
}

func (s Scoring) Points(damage, kills int) int {
	return damage*s.PerDamage + kills*s.PerFrag
}

// Engine owns the in-memory battle and player collections. The remote store
// is authoritative; the engine holds the provisional local copy.
type Engine struct {
	mu      sync.RWMutex
	scoring Scoring
	battles map[string]*domain.BattleRecord
	players domain.PlayerDirectory
	version uint64
	now     func() time.Time
	logger  zerolog.Logger
}

func NewEngine(cfg *config.Config, logger zerolog.Logger) *Engine {
	return NewEngineWithScoring(NewScoring(cfg.PointsPerTeamWin), logger)
}

func NewEngineWithScoring(scoring Scoring, logger zerolog.Logger) *Engine {
	return &Engine{
		scoring: scoring,
		battles: map[string]*domain.BattleRecord{},
		players: domain.PlayerDirectory{},
		now:     time.Now,
		logger:  logger,
	}
}

func (e *Engine) Scoring() Scoring { return e.scoring }

// SetClock replaces the time source used for new battles.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Version increases on every local mutation.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

func (e *Engine) touch() { e.version++ }

// must hold e.mu
func (e *Engine) ensureBattle(arenaID string) *domain.BattleRecord {
	b, ok := e.battles[arenaID]
	if !ok {
		b = domain.NewBattleRecord(e.now())
		e.battles[arenaID] = b
		e.logger.Debug().Str("arena_id", arenaID).Msg("battle record created")
	}
	return b
}

// must hold e.mu
func (e *Engine) ensurePlayer(b *domain.BattleRecord, playerID, vehicle string) *domain.PlayerRecord {
	if b.Players == nil {
		b.Players = map[string]*domain.PlayerRecord{}
	}
	p, ok := b.Players[playerID]
	if !ok {
		name := e.players[playerID]
		if name == "" {
			name = domain.UnknownPlayer
		}
		if vehicle == "" {
			vehicle = domain.UnknownVehicle
		}
		p = &domain.PlayerRecord{Name: name, Vehicle: vehicle}
		b.Players[playerID] = p
	}
	return p
}

func (e *Engine) rescore(p *domain.PlayerRecord) {
	p.Points = e.scoring.Points(p.Damage, p.Kills)
}

// rescoreAll recomputes cached points for records coming from outside the
// engine, so stored points always follow the scoring formula.
func (e *Engine) rescoreAll(b *domain.BattleRecord) {
	for _, p := range b.Players {
		e.rescore(p)
	}
}

// OnHangarEntered records the player's display name. It reports whether the
// directory changed; an already named player is left alone unless force is set.
func (e *Engine) OnHangarEntered(playerID, name string, force bool) bool {
	if playerID == "" || name == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current, known := e.players[playerID]
	if known && current != "" && (!force || current == name) {
		return false
	}
	e.players[playerID] = name
	e.touch()
	return true
}

func (e *Engine) OnBattleStarted(arenaID, playerID, vehicle string) error {
	if arenaID == "" {
		return domain.NewValidationError("arenaId", "missing")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.ensureBattle(arenaID)
	if playerID != "" {
		e.ensurePlayer(b, playerID, vehicle)
	}
	e.touch()
	return nil
}

func (e *Engine) OnArenaInfo(arenaID, mapName, playerID, vehicle, playerName string) error {
	if arenaID == "" {
		return domain.NewValidationError("arenaId", "missing")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.ensureBattle(arenaID)
	if mapName == "" {
		mapName = domain.UnknownMap
	}
	b.MapName = mapName
	if playerID != "" {
		p := e.ensurePlayer(b, playerID, vehicle)
		if vehicle != "" {
			p.Vehicle = vehicle
		}
		if playerName != "" {
			p.Name = playerName
		}
	}
	e.touch()
	return nil
}

func (e *Engine) OnDamageDealt(arenaID, playerID string, delta int) error {
	if arenaID == "" || playerID == "" {
		return domain.NewValidationError("damage", "arena and player are required")
	}
	if delta < 0 {
		return domain.NewValidationError("damage", "delta must not be negative")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.ensurePlayer(e.ensureBattle(arenaID), playerID, "")
	p.Damage += delta
	e.rescore(p)
	e.touch()
	return nil
}

func (e *Engine) OnKill(arenaID, playerID string) error {
	if arenaID == "" || playerID == "" {
		return domain.NewValidationError("kill", "arena and player are required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.ensurePlayer(e.ensureBattle(arenaID), playerID, "")
	p.Kills++
	e.rescore(p)
	e.touch()
	return nil
}

// OnBattleResult finalises the battle the result belongs to. Damage and kills
// are reconciled by maximum, so applying the same result again changes nothing.
func (e *Engine) OnBattleResult(actingPlayerID string, result *domain.BattleResult) error {
	if result == nil {
		return domain.NewValidationError("battleResult", "missing")
	}
	if err := result.Validate(); err != nil {
		return err
	}
	arenaID := result.ArenaUniqueID.String()

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.ensureBattle(arenaID)
	b.Duration = result.Common.Duration

	if rp, ok := result.Players[actingPlayerID]; ok && rp.Team != nil && result.Common.WinnerTeam != nil {
		switch winner := *result.Common.WinnerTeam; {
		case *rp.Team == winner:
			b.Win = domain.OutcomeWin
		case winner == domain.NoWinnerTeam:
			b.Win = domain.OutcomeDraw
		default:
			b.Win = domain.OutcomeLose
		}
	} else {
		e.logger.Warn().
			Str("arena_id", arenaID).
			Str("player_id", actingPlayerID).
			Msg("battle result has no team for acting player, outcome unchanged")
	}

	roster := make(map[string]struct{}, len(e.players)+len(b.Players))
	for id := range e.players {
		roster[id] = struct{}{}
	}
	for id := range b.Players {
		roster[id] = struct{}{}
	}

	reconciled := 0
	for _, group := range result.Vehicles {
		for _, v := range group {
			id := v.AccountDBID.String()
			if _, known := roster[id]; !known {
				continue
			}
			p := e.ensurePlayer(b, id, v.VehicleName)
			p.Damage = max(p.Damage, v.DamageDealt)
			p.Kills = max(p.Kills, v.Kills)
			e.rescore(p)
			reconciled++
		}
	}
	e.touch()

	e.logger.Info().
		Str("arena_id", arenaID).
		Str("outcome", b.Win.String()).
		Int("duration", b.Duration).
		Int("reconciled", reconciled).
		Msg("battle result applied")
	return nil
}

func (e *Engine) BattleTotals(b *domain.BattleRecord) domain.BattleTotals {
	var t domain.BattleTotals
	if b == nil {
		return t
	}
	for _, p := range b.Players {
		t.Points += e.scoring.Points(p.Damage, p.Kills)
		t.Damage += p.Damage
		t.Kills += p.Kills
	}
	return t
}

func (e *Engine) PlayerTotals(playerID string) domain.PlayerTotals {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.playerTotals(playerID)
}

func (e *Engine) playerTotals(playerID string) domain.PlayerTotals {
	t := domain.PlayerTotals{PlayerID: playerID, Name: e.players[playerID]}
	for _, b := range e.battles {
		p, ok := b.Players[playerID]
		if !ok {
			continue
		}
		t.Points += e.scoring.Points(p.Damage, p.Kills)
		t.Damage += p.Damage
		t.Kills += p.Kills
	}
	return t
}

// AllPlayerTotals returns totals for every directory player, ordered by id.
func (e *Engine) AllPlayerTotals() []domain.PlayerTotals {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.players))
	for id := range e.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.PlayerTotals, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.playerTotals(id))
	}
	return out
}

// TeamTotals folds every battle. The win bonus is only counted here, never
// in per-battle totals.
func (e *Engine) TeamTotals() domain.TeamTotals {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var t domain.TeamTotals
	for _, b := range e.battles {
		t.Battles++
		if b.Win == domain.OutcomeWin {
			t.Wins++
			t.Points += e.scoring.TeamWin
		}
		bt := e.BattleTotals(b)
		t.Points += bt.Points
		t.Damage += bt.Damage
		t.Kills += bt.Kills
	}
	if t.Battles > 0 {
		t.WinRate = float64(t.Wins) / float64(t.Battles)
	}
	return t
}

// WorstBattle returns the finished battle with the fewest points. Ties keep
// the first one in slice order.
func (e *Engine) WorstBattle(battles []domain.Battle) (domain.Battle, bool) {
	var (
		worst  domain.Battle
		lowest int
		found  bool
	)
	for _, b := range battles {
		if b.BattleRecord == nil || !b.Finished() {
			continue
		}
		points := e.BattleTotals(b.BattleRecord).Points
		if !found || points < lowest {
			worst, lowest, found = b, points, true
		}
	}
	return worst, found
}

// Battles returns copies of every battle, newest first.
func (e *Engine) Battles() []domain.Battle {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Battle, 0, len(e.battles))
	for id, b := range e.battles {
		out = append(out, domain.Battle{ID: id, BattleRecord: b.Clone()})
	}
	SortBattles(out)
	return out
}

func SortBattles(battles []domain.Battle) {
	sort.SliceStable(battles, func(i, j int) bool {
		if battles[i].StartTime != battles[j].StartTime {
			return battles[i].StartTime > battles[j].StartTime
		}
		return battles[i].ID < battles[j].ID
	})
}

func (e *Engine) Battle(arenaID string) (domain.Battle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b, ok := e.battles[arenaID]
	if !ok {
		return domain.Battle{}, false
	}
	return domain.Battle{ID: arenaID, BattleRecord: b.Clone()}, true
}

func (e *Engine) PlayerName(playerID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	name, ok := e.players[playerID]
	return name, ok
}

func (e *Engine) PlayerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.players)
}

// Snapshot returns a deep copy of the state along with its version.
func (e *Engine) Snapshot() (domain.Snapshot, uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := domain.Snapshot{Battles: e.battles, Players: e.players}.Clone()
	return snap, e.version
}

// Replace installs an authoritative snapshot unless a local mutation happened
// after ifVersion. Absent parts of the snapshot leave local state untouched.
func (e *Engine) Replace(snap domain.Snapshot, ifVersion uint64) bool {
	snap = snap.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.version != ifVersion {
		return false
	}
	if snap.Battles != nil {
		for _, b := range snap.Battles {
			e.rescoreAll(b)
		}
		e.battles = snap.Battles
	}
	if snap.Players != nil {
		e.players = snap.Players
	}
	return true
}

func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.battles = map[string]*domain.BattleRecord{}
	e.players = domain.PlayerDirectory{}
	e.touch()
}

func (e *Engine) RemoveBattle(arenaID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.battles[arenaID]; !ok {
		return false
	}
	delete(e.battles, arenaID)
	e.touch()
	return true
}

// Merge folds an imported battle into the collection. Battle fields are
// overwritten; imported players replace same-id players and others survive.
func (e *Engine) Merge(arenaID string, rec *domain.BattleRecord) {
	if rec == nil {
		return
	}
	rec = rec.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rescoreAll(rec)
	existing, ok := e.battles[arenaID]
	if !ok {
		e.battles[arenaID] = rec
		e.touch()
		return
	}
	players := existing.Players
	if players == nil {
		players = map[string]*domain.PlayerRecord{}
	}
	for id, p := range rec.Players {
		players[id] = p
	}
	rec.Players = players
	e.battles[arenaID] = rec
	e.touch()
}
