package service

import (
	"fmt"
	"sort"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/events"
	"battle-tracker/internal/stats"

	"github.com/rs/zerolog"
)

type ResultFilter string

const (
	ResultWin      ResultFilter = "win"
	ResultLose     ResultFilter = "lose"
	ResultDraw     ResultFilter = "draw"
	ResultInBattle ResultFilter = "inBattle"
)

func (r ResultFilter) outcome() (domain.BattleOutcome, error) {
	switch r {
	case ResultWin:
		return domain.OutcomeWin, nil
	case ResultLose:
		return domain.OutcomeLose, nil
	case ResultDraw:
		return domain.OutcomeDraw, nil
	case ResultInBattle:
		return domain.OutcomeInProgress, nil
	}
	return 0, domain.NewValidationError("result", fmt.Sprintf("unknown result %q", string(r)))
}

// Criteria narrows the battle collection. Empty fields do not constrain.
type Criteria struct {
	Map     string       `json:"map,omitempty"`
	Vehicle string       `json:"vehicle,omitempty"`
	Result  ResultFilter `json:"result,omitempty"`
	// calendar day, YYYY-MM-DD
	Date   string `json:"date,omitempty"`
	Player string `json:"player,omitempty"`
}

type FilterOptions struct {
	Maps     []string `json:"maps"`
	Vehicles []string `json:"vehicles"`
	Players  []string `json:"players"`
}

type QueryService struct {
	engine   *stats.Engine
	bus      *events.Bus
	location *time.Location
	logger   zerolog.Logger
}

func NewQueryService(cfg *config.Config, engine *stats.Engine, bus *events.Bus, logger zerolog.Logger) *QueryService {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &QueryService{engine: engine, bus: bus, location: loc, logger: logger}
}

func (s *QueryService) ApplyFilters(c Criteria) ([]domain.Battle, error) {
	filtered, err := Filter(s.engine.Battles(), c, s.location)
	if err != nil {
		s.logger.Debug().Err(err).Msg("invalid filter criteria")
		return nil, err
	}
	s.bus.Emit(constants.EventFiltersApplied, filtered)
	s.logger.Debug().Interface("criteria", c).Int("count", len(filtered)).Msg("filters applied")
	return filtered, nil
}

// Filter keeps the battles matching every present criterion, preserving order.
func Filter(battles []domain.Battle, c Criteria, loc *time.Location) ([]domain.Battle, error) {
	var (
		outcome domain.BattleOutcome
		day     time.Time
		err     error
	)
	if c.Result != "" {
		if outcome, err = c.Result.outcome(); err != nil {
			return nil, err
		}
	}
	if c.Date != "" {
		if day, err = time.ParseInLocation(constants.DateLayout, c.Date, loc); err != nil {
			return nil, domain.NewValidationError("date", "expected YYYY-MM-DD")
		}
	}

	out := make([]domain.Battle, 0, len(battles))
	for _, b := range battles {
		if c.Map != "" && b.MapName != c.Map {
			continue
		}
		if c.Vehicle != "" && !anyPlayer(b, func(_ string, p *domain.PlayerRecord) bool { return p.Vehicle == c.Vehicle }) {
			continue
		}
		if c.Result != "" && b.Win != outcome {
			continue
		}
		if c.Date != "" && !sameDay(b.Started().In(loc), day) {
			continue
		}
		if c.Player != "" && !anyPlayer(b, func(id string, p *domain.PlayerRecord) bool { return p.Name == c.Player || id == c.Player }) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func anyPlayer(b domain.Battle, match func(id string, p *domain.PlayerRecord) bool) bool {
	for id, p := range b.Players {
		if p != nil && match(id, p) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *QueryService) FilterOptions() FilterOptions {
	maps, vehicles, players := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for _, b := range s.engine.Battles() {
		if b.MapName != "" {
			maps[b.MapName] = struct{}{}
		}
		for _, p := range b.Players {
			if p.Vehicle != "" {
				vehicles[p.Vehicle] = struct{}{}
			}
			if p.Name != "" {
				players[p.Name] = struct{}{}
			}
		}
	}
	return FilterOptions{Maps: sortedKeys(maps), Vehicles: sortedKeys(vehicles), Players: sortedKeys(players)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *QueryService) WorstBattle(c Criteria) (domain.Battle, bool, error) {
	battles, err := Filter(s.engine.Battles(), c, s.location)
	if err != nil {
		return domain.Battle{}, false, err
	}
	worst, ok := s.engine.WorstBattle(battles)
	return worst, ok, nil
}

type BattleView struct {
	domain.Battle
	Totals domain.BattleTotals `json:"totals"`
}

func (s *QueryService) Views(battles []domain.Battle) []BattleView {
	out := make([]BattleView, len(battles))
	for i, b := range battles {
		out[i] = BattleView{Battle: b, Totals: s.engine.BattleTotals(b.BattleRecord)}
	}
	return out
}

type StatsView struct {
	Team      domain.TeamTotals      `json:"team"`
	Players   []domain.PlayerTotals  `json:"players"`
	Directory domain.PlayerDirectory `json:"directory"`
	Current   *domain.BattleTotals   `json:"currentBattle,omitempty"`
	Session   domain.Session         `json:"session"`
	Scoring   map[string]int         `json:"scoring"`
}

func (s *QueryService) Stats(session domain.Session) StatsView {
	snap, _ := s.engine.Snapshot()
	view := StatsView{
		Team:      s.engine.TeamTotals(),
		Players:   s.engine.AllPlayerTotals(),
		Directory: snap.Players,
		Session:   session,
	}
	if b, ok := s.engine.Battle(session.ArenaID); ok && session.ArenaID != "" {
		t := s.engine.BattleTotals(b.BattleRecord)
		view.Current = &t
	}
	sc := s.engine.Scoring()
	view.Scoring = map[string]int{"perDamage": sc.PerDamage, "perFrag": sc.PerFrag, "teamWin": sc.TeamWin}
	return view
}
