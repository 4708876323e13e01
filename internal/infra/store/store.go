package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options configures a Store.
type Options struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	// Now overrides the clock, for tests driving lease and age windows.
	Now func() time.Time
}

// Store is the shared datastore every orchestrator replica works against.
// All instance mutation goes through narrow, status-guarded single-row
// updates; cross-replica exclusion rides on the last_reconciliation lease
// claimed in Claim* methods.
type Store struct {
	db         *gorm.DB
	logger     *zap.Logger
	metrics    domain.Metrics
	now        func() time.Time
	skipLocked bool

	auditOnce   sync.Once
	auditWriter *AuditWriter
}

// Open connects to the shared datastore. driver is "postgres" for
// production or "sqlite" (pure Go) for tests and local runs; dsn is the
// connection string or sqlite file path.
func Open(driver, dsn string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var dialector gorm.Dialector
	skipLocked := false
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
		skipLocked = true
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, domain.E(domain.CodeConfiguration, "store.Open",
			fmt.Sprintf("unsupported store driver %q (want %s or %s)", driver, DriverPostgres, DriverSQLite), nil)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store (%s): %w", driver, err)
	}

	return &Store{
		db:         db,
		logger:     logger.Named("store"),
		metrics:    metrics,
		now:        now,
		skipLocked: skipLocked,
	}, nil
}

// AutoMigrate creates or updates the orchestrator tables. Production schema
// management stays with the control plane's migration tooling; this covers
// dev, tests and the migrate subcommand.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&domain.Instance{},
		&domain.InstanceStateHistory{},
		&domain.AuditRecord{},
		&domain.Setting{},
		&domain.ModelOffering{},
		&domain.SimInstance{},
	)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
