package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type BattleOutcome int

const (
	OutcomeInProgress BattleOutcome = -1
	OutcomeLose       BattleOutcome = 0
	OutcomeWin        BattleOutcome = 1
	OutcomeDraw       BattleOutcome = 2
)

func (o BattleOutcome) Valid() bool {
	switch o {
	case OutcomeInProgress, OutcomeLose, OutcomeWin, OutcomeDraw:
		return true
	}
	return false
}

func (o BattleOutcome) String() string {
	switch o {
	case OutcomeInProgress:
		return "inBattle"
	case OutcomeLose:
		return "lose"
	case OutcomeWin:
		return "win"
	case OutcomeDraw:
		return "draw"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o *BattleOutcome) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	out := BattleOutcome(v)
	if !out.Valid() {
		return fmt.Errorf("invalid battle outcome %d", v)
	}
	*o = out
	return nil
}

const (
	UnknownMap     = "Unknown Map"
	UnknownPlayer  = "Unknown Player"
	UnknownVehicle = "Unknown Vehicle"
)

type PlayerRecord struct {
	Name    string `json:"name"`
	Damage  int    `json:"damage"`
	Kills   int    `json:"kills"`
	Points  int    `json:"points"`
	Vehicle string `json:"vehicle"`
}

type BattleRecord struct {
	// unix milliseconds, matches the remote store format
	StartTime int64                    `json:"startTime"`
	Duration  int                      `json:"duration"`
	Win       BattleOutcome            `json:"win"`
	MapName   string                   `json:"mapName"`
	Players   map[string]*PlayerRecord `json:"players"`
}

func NewBattleRecord(start time.Time) *BattleRecord {
	return &BattleRecord{
		StartTime: start.UnixMilli(),
		Win:       OutcomeInProgress,
		MapName:   UnknownMap,
		Players:   map[string]*PlayerRecord{},
	}
}

func (b *BattleRecord) Started() time.Time {
	return time.UnixMilli(b.StartTime)
}

func (b *BattleRecord) Finished() bool {
	return b.Win != OutcomeInProgress
}

// Clone deep-copies b. Nil player entries are dropped.
func (b *BattleRecord) Clone() *BattleRecord {
	if b == nil {
		return nil
	}
	out := *b
	out.Players = make(map[string]*PlayerRecord, len(b.Players))
	for id, p := range b.Players {
		if p == nil {
			continue
		}
		cp := *p
		out.Players[id] = &cp
	}
	return &out
}

// PlayerDirectory maps player id to display name.
type PlayerDirectory map[string]string

// Snapshot is the full state exchanged with the remote store. A nil map
// means the field was absent. Clone drops nil battle entries.
type Snapshot struct {
	Battles map[string]*BattleRecord `json:"BattleStats"`
	Players PlayerDirectory          `json:"PlayerInfo"`
}

func (s Snapshot) Clone() Snapshot {
	var out Snapshot
	if s.Battles != nil {
		out.Battles = make(map[string]*BattleRecord, len(s.Battles))
		for id, b := range s.Battles {
			if b == nil {
				continue
			}
			out.Battles[id] = b.Clone()
		}
	}
	if s.Players != nil {
		out.Players = make(PlayerDirectory, len(s.Players))
		for id, name := range s.Players {
			out.Players[id] = name
		}
	}
	return out
}

// Battle is a BattleRecord together with its arena id.
type Battle struct {
	ID string `json:"id"`
	*BattleRecord
}

type BattleTotals struct {
	Points int `json:"points"`
	Damage int `json:"damage"`
	Kills  int `json:"kills"`
}

type PlayerTotals struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
	Damage   int    `json:"damage"`
	Kills    int    `json:"kills"`
}

type TeamTotals struct {
	Points  int     `json:"points"`
	Damage  int     `json:"damage"`
	Kills   int     `json:"kills"`
	Wins    int     `json:"wins"`
	Battles int     `json:"battles"`
	WinRate float64 `json:"winRate"`
}

// Session is the widget's view of what the local player is doing right now.
type Session struct {
	PlayerID   string   `json:"currentPlayerId"`
	ArenaID    string   `json:"currentArenaId"`
	Vehicle    string   `json:"currentVehicle"`
	InPlatoon  bool     `json:"isInPlatoon"`
	PlatoonIDs []string `json:"platoonIds"`
}
