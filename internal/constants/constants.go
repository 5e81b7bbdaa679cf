package constants

import "time"

const (
	ExternalAPITimeout = 30 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	LeaderboardTimeout = 30 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// geometric decay applied per rank when summing a player's plays
	PPWeightDecay = 0.95

	BestScoresLimit        = 100
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 50
	TokenExpiryMargin      = 30 * time.Second
)
