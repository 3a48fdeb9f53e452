package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

var (
	battleFields = []string{"startTime", "duration", "win", "mapName", "players"}
	playerFields = []string{"name", "damage", "kills", "points", "vehicle"}
)

// DecodeObject decodes doc as a JSON object, keeping numbers as json.Number.
func DecodeObject(doc []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, NewValidationError("document", "not valid JSON")
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, NewValidationError("document", "must be an object")
	}
	return obj, nil
}

// ParseBattleRecord checks a decoded battle entry field by field. Every field
// must be present with the right type; counters must not be negative.
func ParseBattleRecord(v any) (*BattleRecord, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, NewValidationError("battle", "must be an object")
	}
	for _, f := range battleFields {
		if _, ok := obj[f]; !ok {
			return nil, NewValidationError(f, "missing")
		}
	}

	start, ok := asInt(obj["startTime"])
	if !ok {
		return nil, NewValidationError("startTime", "must be an integer")
	}
	duration, ok := asInt(obj["duration"])
	if !ok || duration < 0 || duration > math.MaxInt32 {
		return nil, NewValidationError("duration", "must be a non-negative integer")
	}
	win, ok := asInt(obj["win"])
	if !ok || !BattleOutcome(win).Valid() {
		return nil, NewValidationError("win", "must be one of -1, 0, 1, 2")
	}
	mapName, ok := obj["mapName"].(string)
	if !ok {
		return nil, NewValidationError("mapName", "must be text")
	}
	players, ok := obj["players"].(map[string]any)
	if !ok {
		return nil, NewValidationError("players", "must be an object")
	}

	rec := &BattleRecord{
		StartTime: start,
		Duration:  int(duration),
		Win:       BattleOutcome(win),
		MapName:   mapName,
		Players:   make(map[string]*PlayerRecord, len(players)),
	}
	for id, pv := range players {
		p, err := parsePlayerRecord(pv)
		if err != nil {
			return nil, fmt.Errorf("player %s: %w", id, err)
		}
		rec.Players[id] = p
	}
	return rec, nil
}

func parsePlayerRecord(v any) (*PlayerRecord, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, NewValidationError("player", "must be an object")
	}
	for _, f := range playerFields {
		if _, ok := obj[f]; !ok {
			return nil, NewValidationError(f, "missing")
		}
	}

	name, nameOK := obj["name"].(string)
	vehicle, vehicleOK := obj["vehicle"].(string)
	if !nameOK || !vehicleOK {
		return nil, NewValidationError("player", "name and vehicle must be text")
	}
	damage, dOK := asInt(obj["damage"])
	kills, kOK := asInt(obj["kills"])
	points, pOK := asInt(obj["points"])
	if !dOK || !kOK || !pOK {
		return nil, NewValidationError("player", "damage, kills and points must be integers")
	}
	if damage < 0 || kills < 0 || points < 0 {
		return nil, NewValidationError("player", "damage, kills and points must not be negative")
	}
	if damage > math.MaxInt32 || kills > math.MaxInt32 {
		return nil, NewValidationError("player", "damage and kills out of range")
	}

	return &PlayerRecord{
		Name:    name,
		Damage:  int(damage),
		Kills:   int(kills),
		Points:  int(points),
		Vehicle: vehicle,
	}, nil
}

// asInt accepts JSON numbers with an integral value that fits in int64.
func asInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}
