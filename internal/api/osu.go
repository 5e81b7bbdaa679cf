package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"pp-tracker/internal/config"
	"pp-tracker/internal/constants"
	"pp-tracker/internal/domain"
	"pp-tracker/internal/metrics"
	"pp-tracker/internal/ruleset"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// OsuClient talks to the osu! API v2 with a client credentials grant.
type OsuClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *fasthttp.Client
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewOsuClient(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *OsuClient {
	return &OsuClient{
		baseURL:      strings.TrimRight(cfg.OsuAPIURL, "/"),
		clientID:     cfg.OsuClientID,
		clientSecret: cfg.OsuClientSecret,
		client:       newHTTPClient(),
		metrics:      m,
		logger:       logger,
		rateLimit: RateLimitInfo{
			Limit:     1200,
			Remaining: 1200,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *OsuClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *OsuClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
			if c.metrics != nil {
				c.metrics.RateLimitRemaining(val)
			}
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// accessToken returns the cached bearer token, requesting a new one when it
// is about to expire.
func (c *OsuClient) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Add(constants.TokenExpiryMargin).Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
		"scope":         {"public"},
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/oauth/token")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBodyString(form.Encode())

	if err := send(ctx, c.client, req, resp); err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("token request failed: %d", resp.StatusCode())
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Debug().Time("expires_at", c.tokenExpiry).Msg("obtained api token")
	return c.token, nil
}

func (c *OsuClient) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenMu.Unlock()
}

func (c *OsuClient) TopPlayers(ctx context.Context, rs ruleset.Ruleset, page int) ([]domain.Player, error) {
	path := fmt.Sprintf("/api/v2/rankings/%s/performance?cursor%%5Bpage%%5D=%d", rs.ShortName, page)
	resp, err := doRequest[rankingsResponse](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s rankings page %d: %w", rs.ShortName, page, err)
	}

	players := make([]domain.Player, 0, len(resp.Ranking))
	for _, entry := range resp.Ranking {
		p := domain.Player{
			UserID:   entry.User.ID,
			Username: entry.User.Username,
			Country:  entry.User.CountryCode,
			LivePP:   entry.PP,
		}
		if entry.GlobalRank != nil {
			p.Rank = *entry.GlobalRank
		}
		players = append(players, p)
	}
	return players, nil
}

func (c *OsuClient) BestScores(ctx context.Context, rs ruleset.Ruleset, userID int64) ([]domain.RawScore, error) {
	path := fmt.Sprintf("/api/v2/users/%d/scores/best?mode=%s&limit=%d", userID, rs.ShortName, constants.BestScoresLimit)
	resp, err := doRequest[[]scoreResponse](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch best scores for user %d: %w", userID, err)
	}

	scores := make([]domain.RawScore, 0, len(*resp))
	for _, s := range *resp {
		scores = append(scores, s.toDomain(userID))
	}
	return scores, nil
}

func doRequest[T any](ctx context.Context, client *OsuClient, path string) (*T, error) {
	token, err := client.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	if err := send(ctx, client.client, req, resp); err != nil {
		return nil, err
	}

	client.updateRateLimit(resp)

	switch resp.StatusCode() {
	case fasthttp.StatusOK:
	case fasthttp.StatusUnauthorized:
		client.invalidateToken()
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	default:
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type rankingsResponse struct {
	Ranking []rankingEntry `json:"ranking"`
}

type rankingEntry struct {
	PP         float64 `json:"pp"`
	GlobalRank *int    `json:"global_rank"`
	User       struct {
		ID          int64  `json:"id"`
		Username    string `json:"username"`
		CountryCode string `json:"country_code"`
	} `json:"user"`
}

type scoreResponse struct {
	ID         int64          `json:"id"`
	UserID     int64          `json:"user_id"`
	Accuracy   float64        `json:"accuracy"`
	MaxCombo   int            `json:"max_combo"`
	Score      int64          `json:"score"`
	TotalScore int64          `json:"total_score"`
	Statistics map[string]int `json:"statistics"`
	Mods       modList        `json:"mods"`
	PP         *float64       `json:"pp"`
	Beatmap    struct {
		ID int64 `json:"id"`
	} `json:"beatmap"`
}

func (s scoreResponse) toDomain(fallbackUser int64) domain.RawScore {
	user := s.UserID
	if user == 0 {
		user = fallbackUser
	}
	total := s.TotalScore
	if total == 0 {
		total = s.Score
	}
	return domain.RawScore{
		ScoreID:    s.ID,
		UserID:     user,
		BeatmapID:  s.Beatmap.ID,
		Statistics: s.Statistics,
		Accuracy:   s.Accuracy,
		MaxCombo:   s.MaxCombo,
		TotalScore: total,
		Mods:       s.Mods,
		LivePP:     s.PP,
	}
}

// modList accepts both the legacy ["HD","DT"] form and the lazer
// [{"acronym":"HD"}] form.
type modList []string

func (m *modList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	var plain []string
	if err := json.Unmarshal(data, &plain); err == nil {
		*m = plain
		return nil
	}

	var objects []struct {
		Acronym string `json:"acronym"`
	}
	if err := json.Unmarshal(data, &objects); err != nil {
		return fmt.Errorf("unrecognized mods format: %w", err)
	}
	out := make([]string, len(objects))
	for i, o := range objects {
		out[i] = o.Acronym
	}
	*m = out
	return nil
}
