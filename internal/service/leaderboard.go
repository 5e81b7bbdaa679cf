package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"pp-tracker/internal/constants"
	"pp-tracker/internal/domain"
	"pp-tracker/internal/metrics"
	"pp-tracker/internal/ruleset"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ScoreSource is the remote ranking and score API.
type ScoreSource interface {
	TopPlayers(ctx context.Context, rs ruleset.Ruleset, page int) ([]domain.Player, error)
	BestScores(ctx context.Context, rs ruleset.Ruleset, userID int64) ([]domain.RawScore, error)
}

type Recomputer interface {
	RecomputeBatch(ctx context.Context, rs ruleset.Ruleset, scores []domain.RawScore, reporter ErrorReporter) Batch
}

type Request struct {
	Ruleset ruleset.Ruleset
	Page    int
	Amount  int
}

// PlayerResult is one player's recomputed profile.
type PlayerResult struct {
	Player    domain.Player
	Position  int
	Plays     []domain.ScoredPlay
	Aggregate domain.WeightedAggregate
	Cancelled bool
}

type Standing struct {
	UserID    int64
	Username  string
	Total     float64
	LocalRank int
	LiveRank  int
	// RankDelta is positive when recomputation moves the player up.
	RankDelta int
}

type Leaderboard struct {
	RunID     string
	Players   []PlayerResult
	ByLocal   []Standing
	ByLive    []Standing
	Failures  []ItemError
	Cancelled bool
}

type LeaderboardService struct {
	source  ScoreSource
	engine  Recomputer
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewLeaderboardService(source ScoreSource, engine Recomputer, m *metrics.Metrics, logger zerolog.Logger) *LeaderboardService {
	if m == nil {
		m = metrics.New()
	}
	return &LeaderboardService{source: source, engine: engine, metrics: m, logger: logger}
}

// Clamp bounds the page and amount to what the ranking API serves.
func (r Request) Clamp() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	r.Amount = max(1, min(r.Amount, constants.MaxLeaderboardSize))
	return r
}

// Run recomputes the top players of one ranking page. progress, if set, is
// called after each player in ranking order. Only a failure to fetch the
// ranking page is returned as an error.
func (s *LeaderboardService) Run(ctx context.Context, req Request, progress func(PlayerResult)) (*Leaderboard, error) {
	req = req.Clamp()
	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}
	log := s.logger.With().Str("run_id", runID).Str("ruleset", req.Ruleset.ShortName).Logger()

	players, err := s.source.TopPlayers(ctx, req.Ruleset, req.Page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rankings: %w", err)
	}
	if len(players) > req.Amount {
		players = players[:req.Amount]
	}
	log.Info().Int("page", req.Page).Int("players", len(players)).Msg("starting leaderboard run")

	board := &Leaderboard{RunID: runID, Players: make([]PlayerResult, 0, len(players))}
	failures := &runReporter{runID: runID, log: NewErrorLog(log, s.metrics)}

	for i, player := range players {
		if ctx.Err() != nil {
			board.Cancelled = true
			break
		}

		scores, err := s.source.BestScores(ctx, req.Ruleset, player.UserID)
		if err != nil {
			if ctx.Err() != nil {
				board.Cancelled = true
				break
			}
			failures.Report(ctx, ItemError{UserID: player.UserID, Index: i, Stage: StageFetch, Err: err})
			continue
		}

		batch := s.engine.RecomputeBatch(ctx, req.Ruleset, scores, failures.forUser(player.UserID))
		result := PlayerResult{
			Player:    player,
			Position:  i,
			Plays:     batch.Plays,
			Aggregate: Aggregate(batch.Plays, player.LivePP),
			Cancelled: batch.Cancelled,
		}
		board.Players = append(board.Players, result)
		s.metrics.PlayerProcessed()

		log.Debug().
			Int64("user_id", player.UserID).
			Int("plays", len(batch.Plays)).
			Float64("local_pp", result.Aggregate.TotalLocal).
			Float64("live_pp", result.Aggregate.TotalLive).
			Msg("player recomputed")

		if progress != nil {
			progress(result)
		}
		if batch.Cancelled {
			board.Cancelled = true
			break
		}
	}

	board.ByLocal, board.ByLive = Rank(board.Players)
	board.Failures = failures.log.Errors()

	log.Info().
		Int("players", len(board.Players)).
		Int("failures", len(board.Failures)).
		Bool("cancelled", board.Cancelled).
		Msg("leaderboard run finished")
	return board, nil
}

// Rank orders results by recomputed and by live totals. Ties keep the
// order of results.
func Rank(results []PlayerResult) (byLocal, byLive []Standing) {
	local := slices.Clone(results)
	live := slices.Clone(results)
	slices.SortStableFunc(local, func(a, b PlayerResult) int {
		return cmp.Compare(b.Aggregate.TotalLocal, a.Aggregate.TotalLocal)
	})
	slices.SortStableFunc(live, func(a, b PlayerResult) int {
		return cmp.Compare(b.Aggregate.TotalLive, a.Aggregate.TotalLive)
	})

	liveRank := make(map[int64]int, len(live))
	for i, r := range live {
		liveRank[r.Player.UserID] = i + 1
	}
	localRank := make(map[int64]int, len(local))
	for i, r := range local {
		localRank[r.Player.UserID] = i + 1
	}

	standing := func(r PlayerResult, total float64) Standing {
		lr, vr := localRank[r.Player.UserID], liveRank[r.Player.UserID]
		return Standing{
			UserID:    r.Player.UserID,
			Username:  r.Player.Username,
			Total:     total,
			LocalRank: lr,
			LiveRank:  vr,
			RankDelta: vr - lr,
		}
	}

	byLocal = make([]Standing, len(local))
	for i, r := range local {
		byLocal[i] = standing(r, r.Aggregate.TotalLocal)
	}
	byLive = make([]Standing, len(live))
	for i, r := range live {
		byLive[i] = standing(r, r.Aggregate.TotalLive)
	}
	return byLocal, byLive
}

// runReporter stamps the run and user onto item errors before logging them.
type runReporter struct {
	runID  string
	userID int64
	log    *ErrorLog
}

func (r *runReporter) Report(ctx context.Context, item ItemError) {
	item.RunID = r.runID
	if item.UserID == 0 {
		item.UserID = r.userID
	}
	r.log.Report(ctx, item)
}

func (r *runReporter) forUser(userID int64) *runReporter {
	return &runReporter{runID: r.runID, userID: userID, log: r.log}
}
