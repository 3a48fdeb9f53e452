package constants

import "time"

const (
	PointsPerDamage         = 1
	PointsPerFrag           = 400
	DefaultPointsPerTeamWin = 2000
)

const (
	EventStatsUpdated   = "statsUpdated"
	EventFiltersApplied = "filtersApplied"
	EventBattleDeleted  = "battleDeleted"
	EventDataImported   = "dataImported"
)

const (
	// lets the backend finish the write before it is read back
	SyncReloadDelay = 300 * time.Millisecond
	ResyncInterval  = 30 * time.Second
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	FeedSendBuffer   = 64
	FeedWriteTimeout = 10 * time.Second
	MaxImportBytes   = 16 << 20
)

const (
	DateLayout = "2006-01-02"
)
