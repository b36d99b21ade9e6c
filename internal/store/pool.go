// Package store is the persistence layer for the coordination bus: a single
// embedded SQLite file opened through gorm, wrapped in a pool manager that
// mirrors internal/database's connection-lifecycle shape, plus the schema
// migrations and the CRUD facade consumed by internal/search, internal/
// reservation and the boundary handlers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/agentmail-core/agentmail/internal/metrics"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PoolConfig configures the single *sql.DB backing the gorm connection.
// SQLite is single-writer, so MaxOpenConns is deliberately small; WAL mode
// lets readers proceed alongside a writer.
type PoolConfig struct {
	Path                string        `yaml:"path" json:"path"`
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	BusyTimeout         time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultPoolConfig returns sane defaults for an embedded single-file store.
func DefaultPoolConfig(path string) PoolConfig {
	return PoolConfig{
		Path:                path,
		MaxIdleConns:        4,
		MaxOpenConns:        8,
		ConnMaxLifetime:     time.Hour,
		BusyTimeout:         5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Pool owns the gorm.DB and its underlying *sql.DB, applying the WAL and
// busy-timeout pragmas at open time rather than leaving them to defaults.
type Pool struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Open connects to the SQLite file at config.Path, enabling WAL journaling,
// a busy timeout (so a writer momentarily blocked by another connection
// gets sqlite's internal retry rather than an immediate SQLITE_BUSY), and
// foreign key enforcement.
func Open(config PoolConfig, logger *zap.Logger) (*Pool, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	p := &Pool{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "store_pool")),
	}

	if config.HealthCheckInterval > 0 {
		go p.healthCheckLoop()
	}

	p.logger.Info("store pool opened",
		zap.String("path", config.Path),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)
	return p, nil
}

// DB returns the underlying gorm handle.
func (p *Pool) DB() *gorm.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// SQLDB returns the raw *sql.DB, used by the migration runner.
func (p *Pool) SQLDB() *sql.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sqlDB
}

// Ping checks connectivity, used by the /health endpoint's store check.
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("store: pool is closed")
	}
	return p.sqlDB.PingContext(ctx)
}

// Close shuts the pool down. Idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.logger.Info("closing store pool")
	return p.sqlDB.Close()
}

func (p *Pool) healthCheckLoop() {
	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.Ping(ctx); err != nil {
			p.logger.Error("store health check failed", zap.Error(err))
		}
		cancel()
	}
}

// Stats exposes sql.DBStats for the metrics collector.
func (p *Pool) Stats() sql.DBStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sqlDB.Stats()
}

// SetMetricsCollector starts a background loop sampling Stats into collector
// at interval, labeled under database. A nil collector is a no-op, the same
// nil-disables convention modelclient.ResilientClient uses. Call at most
// once per Pool.
func (p *Pool) SetMetricsCollector(collector *metrics.Collector, database string, interval time.Duration) {
	if collector == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go p.sampleStatsLoop(collector, database, interval)
}

func (p *Pool) sampleStatsLoop(collector *metrics.Collector, database string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()
		if closed {
			return
		}
		stats := p.Stats()
		collector.RecordDBConnections(database, stats.OpenConnections, stats.Idle)
	}
}
