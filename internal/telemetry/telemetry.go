package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"battle-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindHangar        Kind = "hangar"
	KindHangarVehicle Kind = "hangarVehicle"
	KindPlatoon       Kind = "platoon"
	KindPlatoonSlots  Kind = "platoonSlots"
	KindBattle        Kind = "battle"
	KindArena         Kind = "arena"
	KindFeedback      Kind = "feedback"
	KindBattleResult  Kind = "battleResult"
)

// Envelope is one observable-field change forwarded by the widget bridge.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Handler func(ctx context.Context, data json.RawMessage) error

// Source is the subscription side of the telemetry stream.
type Source interface {
	Subscribe(kind Kind, h Handler)
}

// Handle registers a handler that receives the decoded payload.
func Handle[T any](src Source, kind Kind, fn func(ctx context.Context, payload T) error) {
	src.Subscribe(kind, func(ctx context.Context, data json.RawMessage) error {
		var payload T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &payload); err != nil {
				return domain.NewValidationError(string(kind), err.Error())
			}
		}
		return fn(ctx, payload)
	})
}

type HangarStatus struct {
	InHangar   bool      `json:"inHangar"`
	PlayerID   domain.ID `json:"playerId"`
	PlayerName string    `json:"playerName"`
}

type HangarVehicle struct {
	LocalizedShortName string `json:"localizedShortName"`
}

type PlatoonStatus struct {
	InPlatoon bool `json:"inPlatoon"`
}

type PlatoonSlots struct {
	DBID []domain.ID `json:"dbid"`
}

type BattleStatus struct {
	InBattle bool      `json:"inBattle"`
	ArenaID  domain.ID `json:"arenaId"`
}

type ArenaInfo struct {
	ArenaID       domain.ID `json:"arenaId"`
	LocalizedName string    `json:"localizedName"`
	PlayerName    string    `json:"playerName"`
}

type Feedback struct {
	Type string `json:"type"`
	Data *struct {
		Damage int `json:"damage"`
	} `json:"data"`
}

// Hub fans envelopes out to subscribed handlers. A failing or panicking
// handler is logged and does not affect other handlers or later events.
type Hub struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	logger   zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		handlers: map[Kind][]Handler{},
		logger:   logger,
	}
}

func (h *Hub) Subscribe(kind Kind, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[kind] = append(h.handlers[kind], handler)
}

// Dispatch delivers env to every handler for its kind and returns the first
// handler error, if any.
func (h *Hub) Dispatch(ctx context.Context, env Envelope) error {
	h.mu.RLock()
	handlers := h.handlers[env.Type]
	h.mu.RUnlock()

	if len(handlers) == 0 {
		return domain.NewValidationError("type", fmt.Sprintf("unknown telemetry kind %q", env.Type))
	}

	var first error
	for _, handler := range handlers {
		if err := h.invoke(ctx, handler, env.Data); err != nil {
			h.logger.Warn().Err(err).Str("kind", string(env.Type)).Msg("telemetry handler failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (h *Hub) invoke(ctx context.Context, handler Handler, data json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("telemetry handler panic: %v", r)
		}
	}()
	return handler(ctx, data)
}
