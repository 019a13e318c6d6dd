package constants

import "time"

const (
	DefaultRankingDayLimit             = 60
	DefaultRankingNumTourneys          = 2
	DefaultTournamentQualifiedDayLimit = 999
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	// full replays touch every historical match
	RankingTimeout = 5 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	TypeaheadPlayerLimit   = 20
	TypeaheadMinSubstring  = 3
	AliasLookupConcurrency = 8
)

const (
	ChallongeBaseURL = "https://api.challonge.com/v1/tournaments"
)
