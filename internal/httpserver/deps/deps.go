package deps

import (
	"time"

	"github.com/shelf-sh/shelf/internal/logger"
	"github.com/shelf-sh/shelf/internal/reconcile"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time // for testing, defaults to time.Now
	Loop           *reconcile.Loop  // reconciliation loop owning the visible list
	ResyncTrigger  chan struct{}    // channel to trigger a manual full resync
	OpTimeout      time.Duration    // how long mutation handlers wait for the durable outcome
	AllowedOrigins []string         // CORS origins for the dashboard
}
