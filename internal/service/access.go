package service

import (
	"context"
	"fmt"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// AccessKey scopes every remote storage operation to one squad.
type AccessKey string

type AccessGate struct {
	allowed  map[string]struct{}
	settings *repository.SettingsRepository
	logger   zerolog.Logger
}

func NewAccessGate(cfg *config.Config, settings *repository.SettingsRepository, logger zerolog.Logger) *AccessGate {
	allowed := make(map[string]struct{}, len(cfg.AllowedKeys))
	for _, k := range cfg.AllowedKeys {
		allowed[k] = struct{}{}
	}
	return &AccessGate{allowed: allowed, settings: settings, logger: logger}
}

func (g *AccessGate) Allowed(key string) bool {
	_, ok := g.allowed[key]
	return ok
}

func (g *AccessGate) Check(key string) error {
	if key == "" {
		return &domain.ConfigurationError{Reason: "access key is missing"}
	}
	if !g.Allowed(key) {
		return &domain.ConfigurationError{Reason: fmt.Sprintf("access key %q is not allowed", key)}
	}
	return nil
}

// Resolve picks the session key: the candidate if given, otherwise the
// cached one. A valid key is cached for the next start.
func (g *AccessGate) Resolve(ctx context.Context, candidate string) (AccessKey, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	key := candidate
	if key == "" && g.settings != nil {
		cached, ok, err := g.settings.Get(ctx, repository.SettingAccessKey)
		if err != nil {
			g.logger.Warn().Err(err).Msg("failed to read cached access key")
		} else if ok {
			key = cached
			g.logger.Debug().Msg("using cached access key")
		}
	}

	if err := g.Check(key); err != nil {
		g.logger.Error().Err(err).Msg("access denied")
		return "", err
	}

	if g.settings != nil {
		if err := g.settings.Set(ctx, repository.SettingAccessKey, key); err != nil {
			g.logger.Warn().Err(err).Msg("failed to cache access key")
		}
	}
	return AccessKey(key), nil
}

func ProvideAccessKey(gate *AccessGate, cfg *config.Config) (AccessKey, error) {
	return gate.Resolve(context.Background(), cfg.AccessKey)
}

// SessionKey admits only the key this process resolved at startup. Other
// allow-listed keys belong to other squads' sessions.
type SessionKey struct {
	gate *AccessGate
	key  AccessKey
}

func NewSessionKey(gate *AccessGate, key AccessKey) *SessionKey {
	return &SessionKey{gate: gate, key: key}
}

func (s *SessionKey) Allowed(key string) bool {
	return key != "" && key == string(s.key) && s.gate.Allowed(key)
}
