package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"
	"battle-tracker/internal/domain"
	"battle-tracker/internal/feed"
	"battle-tracker/internal/middleware"
	"battle-tracker/internal/service"
	"battle-tracker/internal/telemetry"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

type Server struct {
	telemetry *telemetry.Hub
	tracker   *service.Tracker
	query     *service.QueryService
	transfer  *service.TransferService
	sync      *service.SyncCoordinator
	feed      *feed.Hub
	gate      *service.AccessGate
	location  *time.Location
	logger    zerolog.Logger
}

func NewServer(
	cfg *config.Config,
	telemetryHub *telemetry.Hub,
	tracker *service.Tracker,
	query *service.QueryService,
	transfer *service.TransferService,
	sync *service.SyncCoordinator,
	feedHub *feed.Hub,
	gate *service.AccessGate,
	logger zerolog.Logger,
) *Server {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		telemetry: telemetryHub,
		tracker:   tracker,
		query:     query,
		transfer:  transfer,
		sync:      sync,
		feed:      feedHub,
		gate:      gate,
		location:  loc,
		logger:    logger,
	}
}

// Handler returns the routed API wrapped in request id, CORS and access
// middleware. Only the session's own key is accepted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /telemetry", s.handleTelemetry)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /battles", s.handleBattles)
	mux.HandleFunc("GET /battles/worst", s.handleWorst)
	mux.HandleFunc("GET /battles/filters", s.handleFilters)
	mux.HandleFunc("DELETE /battles/{id}", s.handleDelete)
	mux.HandleFunc("GET /export", s.handleExport)
	mux.HandleFunc("POST /import", s.handleImport)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.Handle("GET /feed", s.feed)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	session := service.NewSessionKey(s.gate, service.AccessKey(s.sync.AccessKey()))
	return middleware.RequestID(s.logger)(c.Handler(middleware.AccessGate(session, s.logger)(mux)))
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var env telemetry.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxImportBytes)).Decode(&env); err != nil {
		s.writeError(w, r, domain.NewValidationError("body", "invalid telemetry envelope"))
		return
	}
	if err := s.telemetry.Dispatch(r.Context(), env); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.query.Stats(s.tracker.Session()))
}

func criteriaFrom(r *http.Request) service.Criteria {
	q := r.URL.Query()
	return service.Criteria{
		Map:     q.Get("map"),
		Vehicle: q.Get("vehicle"),
		Result:  service.ResultFilter(q.Get("result")),
		Date:    q.Get("date"),
		Player:  q.Get("player"),
	}
}

func (s *Server) handleBattles(w http.ResponseWriter, r *http.Request) {
	battles, err := s.query.ApplyFilters(criteriaFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.query.Views(battles))
}

func (s *Server) handleWorst(w http.ResponseWriter, r *http.Request) {
	worst, ok, err := s.query.WorstBattle(criteriaFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no finished battles"})
		return
	}
	writeJSON(w, http.StatusOK, s.query.Views([]domain.Battle{worst})[0])
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.query.FilterOptions())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.DeleteBattle(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.transfer.Export()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	name := service.ExportFileName(s.sync.AccessKey(), time.Now().In(s.location))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "import document too large"})
			return
		}
		s.writeError(w, r, domain.NewValidationError("body", "unreadable"))
		return
	}

	report, err := s.transfer.Import(r.Context(), doc)
	if report != nil {
		// skipped entries are listed in the report
		writeJSON(w, http.StatusOK, report)
		return
	}
	s.writeError(w, r, err)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.Clear(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr      *domain.ValidationError
		transient *domain.TransientError
		cfgErr    *domain.ConfigurationError
	)
	log := zerolog.Ctx(r.Context())

	switch {
	case errors.As(err, &verr):
		log.Debug().Err(err).Msg("rejected request")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "issues": verr.Issues})
	case errors.As(err, &transient):
		log.Warn().Err(err).Msg("remote store unavailable")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": transient.Error()})
	case errors.As(err, &cfgErr):
		log.Error().Err(err).Msg("configuration error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": cfgErr.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
