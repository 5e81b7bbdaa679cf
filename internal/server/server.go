package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pp-tracker/internal/api"
	"pp-tracker/internal/config"
	"pp-tracker/internal/constants"
	"pp-tracker/internal/domain"
	"pp-tracker/internal/metrics"
	"pp-tracker/internal/mods"
	"pp-tracker/internal/ruleset"
	"pp-tracker/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type LeaderboardRunner interface {
	Run(ctx context.Context, req service.Request, progress func(service.PlayerResult)) (*service.Leaderboard, error)
}

type Simulator interface {
	Simulate(ctx context.Context, rs ruleset.Ruleset, raw domain.RawScore, obs domain.StrainObserver) (domain.ScoredPlay, error)
}

type AttributeCache interface {
	Get(ctx context.Context, key domain.MapModsKey) (*domain.DifficultyAttributes, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// TrackerServer exposes the leaderboard, simulation and cache operations
// as JSON over HTTP.
type TrackerServer struct {
	board   LeaderboardRunner
	sim     Simulator
	cache   AttributeCache
	metrics *metrics.Metrics
	ttl     time.Duration
	logger  zerolog.Logger
}

func NewTrackerServer(board LeaderboardRunner, sim Simulator, cache AttributeCache, m *metrics.Metrics, cfg *config.Config, logger zerolog.Logger) *TrackerServer {
	return &TrackerServer{board: board, sim: sim, cache: cache, metrics: m, ttl: cfg.AttributeTTL, logger: logger}
}

func (s *TrackerServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /leaderboard", s.handleLeaderboard)
	mux.HandleFunc("POST /simulate", s.handleSimulate)
	mux.HandleFunc("GET /cache/{mapId}/{mods}", s.handleGetAttributes)
	mux.HandleFunc("DELETE /cache/stale", s.handlePruneStale)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

type leaderboardRequest struct {
	Ruleset string `json:"ruleset"`
	Page    int    `json:"page"`
	Amount  int    `json:"amount"`
}

type standingView struct {
	UserID    int64   `json:"user_id"`
	Username  string  `json:"username"`
	Total     float64 `json:"total"`
	LocalRank int     `json:"local_rank"`
	LiveRank  int     `json:"live_rank"`
	RankDelta int     `json:"rank_delta"`
}

type playerView struct {
	UserID    int64   `json:"user_id"`
	Username  string  `json:"username"`
	Country   string  `json:"country"`
	LivePP    float64 `json:"live_pp"`
	LocalPP   float64 `json:"local_pp"`
	Bonus     float64 `json:"bonus"`
	Plays     int     `json:"plays"`
	Cancelled bool    `json:"cancelled,omitempty"`
}

type failureView struct {
	UserID    int64  `json:"user_id,omitempty"`
	ScoreID   int64  `json:"score_id,omitempty"`
	BeatmapID int64  `json:"beatmap_id,omitempty"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

type leaderboardResponse struct {
	RunID     string         `json:"run_id"`
	Cancelled bool           `json:"cancelled"`
	ByLocal   []standingView `json:"by_local"`
	ByLive    []standingView `json:"by_live"`
	Players   []playerView   `json:"players"`
	Failures  []failureView  `json:"failures"`
}

func (s *TrackerServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req leaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	rs, err := ruleset.Lookup(req.Ruleset)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Amount == 0 {
		req.Amount = constants.DefaultLeaderboardSize
	}

	// a client disconnect cancels the run; finished players are still returned
	ctx, cancel := context.WithTimeout(r.Context(), constants.LeaderboardTimeout)
	defer cancel()

	log := zerolog.Ctx(r.Context())
	board, err := s.board.Run(ctx, service.Request{Ruleset: rs, Page: req.Page, Amount: req.Amount}, func(p service.PlayerResult) {
		log.Info().
			Int64("user_id", p.Player.UserID).
			Str("username", p.Player.Username).
			Float64("local_pp", p.Aggregate.TotalLocal).
			Float64("live_pp", p.Aggregate.TotalLive).
			Msg("player done")
	})
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toLeaderboardResponse(board))
}

func toLeaderboardResponse(board *service.Leaderboard) leaderboardResponse {
	resp := leaderboardResponse{
		RunID:     board.RunID,
		Cancelled: board.Cancelled,
		ByLocal:   toStandings(board.ByLocal),
		ByLive:    toStandings(board.ByLive),
		Players:   make([]playerView, len(board.Players)),
		Failures:  make([]failureView, len(board.Failures)),
	}
	for i, p := range board.Players {
		resp.Players[i] = playerView{
			UserID:    p.Player.UserID,
			Username:  p.Player.Username,
			Country:   p.Player.Country,
			LivePP:    p.Aggregate.TotalLive,
			LocalPP:   p.Aggregate.TotalLocal,
			Bonus:     p.Aggregate.Bonus,
			Plays:     len(p.Plays),
			Cancelled: p.Cancelled,
		}
	}
	for i, f := range board.Failures {
		resp.Failures[i] = failureView{
			UserID:    f.UserID,
			ScoreID:   f.ScoreID,
			BeatmapID: f.BeatmapID,
			Stage:     string(f.Stage),
			Error:     f.Err.Error(),
		}
	}
	return resp
}

func toStandings(in []service.Standing) []standingView {
	out := make([]standingView, len(in))
	for i, s := range in {
		out[i] = standingView(s)
	}
	return out
}

type simulateRequest struct {
	Ruleset    string         `json:"ruleset"`
	BeatmapID  int64          `json:"beatmap_id"`
	Mods       []string       `json:"mods"`
	Statistics map[string]int `json:"statistics"`
	MaxCombo   int            `json:"max_combo"`
	Accuracy   float64        `json:"accuracy"`
	TotalScore int64          `json:"total_score"`
}

type simulateResponse struct {
	BeatmapID int64                `json:"beatmap_id"`
	Mods      string               `json:"mods"`
	PP        float64              `json:"pp"`
	Strains   map[string][]float64 `json:"strains"`
}

func (s *TrackerServer) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	rs, err := ruleset.Lookup(req.Ruleset)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.RequestTimeout)
	defer cancel()

	strains := service.NewStrainRecorder()
	play, err := s.sim.Simulate(ctx, rs, domain.RawScore{
		BeatmapID:  req.BeatmapID,
		Statistics: req.Statistics,
		Accuracy:   req.Accuracy,
		MaxCombo:   req.MaxCombo,
		TotalScore: req.TotalScore,
		Mods:       req.Mods,
	}, strains)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, r, http.StatusOK, simulateResponse{
		BeatmapID: play.Key.MapID,
		Mods:      play.Key.Mods.String(),
		PP:        play.LocalPP,
		Strains:   strains.All(),
	})
}

func (s *TrackerServer) handleGetAttributes(w http.ResponseWriter, r *http.Request) {
	mapID, err := strconv.ParseInt(r.PathValue("mapId"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid map id %q", r.PathValue("mapId")))
		return
	}
	mask, ok := mods.ParseMask(r.PathValue("mods"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid mods %q", r.PathValue("mods")))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	key := domain.MapModsKey{MapID: mapID, Mods: mask}
	attrs, err := s.cache.Get(ctx, key)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if attrs == nil {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("no attributes cached for %s", key))
		return
	}
	writeJSON(w, r, http.StatusOK, api.EncodeAttributes(attrs))
}

func (s *TrackerServer) handlePruneStale(w http.ResponseWriter, r *http.Request) {
	age := s.ttl
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid older_than %q", v))
			return
		}
		age = d
	}
	if age <= 0 {
		writeError(w, r, http.StatusBadRequest, errors.New("attribute ttl is disabled; pass older_than"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	deleted, err := s.cache.Prune(ctx, time.Now().Add(-age))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Int64("deleted", deleted).Dur("older_than", age).Msg("pruned stale attributes")
	writeJSON(w, r, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *TrackerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	n, err := s.cache.Count(ctx)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok", "cached_attributes": n})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownMod),
		errors.Is(err, domain.ErrMissingStatistic),
		errors.Is(err, domain.ErrInvalidScore):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBeatmapNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCalculator):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}
