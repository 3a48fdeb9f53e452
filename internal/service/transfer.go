package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/events"
	"battle-tracker/internal/stats"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

type ImportReport struct {
	Imported  []string          `json:"imported"`
	Skipped   map[string]string `json:"skipped,omitempty"`
	Committed bool              `json:"committed"`
}

type TransferService struct {
	engine *stats.Engine
	sync   *SyncCoordinator
	bus    *events.Bus
	logger zerolog.Logger
}

func NewTransferService(engine *stats.Engine, sync *SyncCoordinator, bus *events.Bus, logger zerolog.Logger) *TransferService {
	return &TransferService{engine: engine, sync: sync, bus: bus, logger: logger}
}

// Export renders the battle collection as indented JSON keyed by arena id.
func (s *TransferService) Export() ([]byte, error) {
	snap, _ := s.engine.Snapshot()
	out, err := json.MarshalIndent(snap.Battles, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return out, nil
}

func ExportFileName(accessKey string, at time.Time) string {
	return fmt.Sprintf("battles-%s-%s.json", slug.Make(accessKey), at.Format(constants.DateLayout))
}

// Import merges an exported document into the shared collection. The remote
// copy is reloaded first so concurrent writers are not clobbered by a stale
// base. Invalid battles are skipped and reported through a ValidationError;
// the valid ones are still merged and committed.
func (s *TransferService) Import(ctx context.Context, doc []byte) (*ImportReport, error) {
	entries, err := domain.DecodeObject(doc)
	if err != nil {
		return nil, err
	}

	if err := s.sync.Reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to refresh before import: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &ImportReport{Imported: []string{}, Skipped: map[string]string{}}
	for _, id := range ids {
		rec, err := domain.ParseBattleRecord(entries[id])
		if err != nil {
			s.logger.Warn().Err(err).Str("arena_id", id).Msg("skipping invalid battle")
			report.Skipped[id] = err.Error()
			continue
		}
		s.engine.Merge(id, rec)
		report.Imported = append(report.Imported, id)
	}

	if len(report.Imported) > 0 {
		if err := s.sync.Commit(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("import merged locally but commit failed")
		} else {
			report.Committed = true
		}
	}

	s.bus.Emit(constants.EventDataImported, report)
	s.logger.Info().
		Int("imported", len(report.Imported)).
		Int("skipped", len(report.Skipped)).
		Bool("committed", report.Committed).
		Msg("import finished")

	if len(report.Skipped) > 0 {
		verr := domain.NewValidationError("battles", fmt.Sprintf("%d entries skipped", len(report.Skipped)))
		for _, id := range ids {
			if reason, ok := report.Skipped[id]; ok {
				verr.Issues = append(verr.Issues, id+": "+reason)
			}
		}
		return report, verr
	}
	return report, nil
}
