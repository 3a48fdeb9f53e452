package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an arena or account identifier. The game reports these as JSON
// numbers wider than float64 precision, so the literal digits are kept.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// BattleResult is the end-of-battle payload emitted by the game client.
type BattleResult struct {
	ArenaUniqueID ID                         `json:"arenaUniqueID"`
	Common        ResultCommon               `json:"common"`
	Players       map[string]ResultPlayer    `json:"players"`
	Vehicles      map[string][]ResultVehicle `json:"vehicles"`
}

type ResultCommon struct {
	Duration   int  `json:"duration"`
	WinnerTeam *int `json:"winnerTeam"`
}

type ResultPlayer struct {
	Team *int `json:"team"`
}

type ResultVehicle struct {
	AccountDBID ID     `json:"accountDBID"`
	DamageDealt int    `json:"damageDealt"`
	Kills       int    `json:"kills"`
	VehicleName string `json:"vehicleName"`
}

// NoWinnerTeam is reported as winnerTeam when a battle ends in a draw.
const NoWinnerTeam = 0

func (r *BattleResult) Validate() error {
	if r.ArenaUniqueID == "" {
		return NewValidationError("arenaUniqueID", "missing")
	}
	if r.Players == nil {
		return NewValidationError("players", "missing")
	}
	if r.Vehicles == nil {
		return NewValidationError("vehicles", "missing")
	}
	if r.Common.Duration < 0 {
		return NewValidationError("common.duration", "negative")
	}
	return nil
}
