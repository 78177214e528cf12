package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrUnknownDataSource is returned when a benchmark names a datasource that
// is not configured.
var ErrUnknownDataSource = errors.New("unknown datasource")

// Result is the outcome of executing one statement.
type Result struct {
	RowsCount int64
}

// Conn is a connection owned exclusively by its holder until Close.
type Conn interface {
	Execute(ctx context.Context, statement string) (*Result, error)
	Close() error
}

// Provider hands out connections to configured datasources.
type Provider interface {
	Start(ctx context.Context) error
	Stop() error

	// Conn acquires a dedicated connection to the named datasource.
	Conn(ctx context.Context, name string) (Conn, error)
}

// Compile-time interface check.
var _ Provider = (*provider)(nil)

type provider struct {
	log logrus.FieldLogger
	cfg map[string]config.DataSourceConfig

	mu  sync.RWMutex
	dbs map[string]*sql.DB
}

// NewProvider creates a new Provider for the given datasources.
func NewProvider(
	log logrus.FieldLogger,
	cfg map[string]config.DataSourceConfig,
) Provider {
	return &provider{
		log: log.WithField("component", "datasource"),
		cfg: cfg,
		dbs: make(map[string]*sql.DB, len(cfg)),
	}
}

// Dialector returns the gorm dialector for the configured driver.
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(cfg.SQLite.Path), nil
	case "postgres":
		return postgres.Open(cfg.Postgres.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Open opens a gorm database for the configured driver.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}

// Start opens a connection pool for every configured datasource. When
// one fails, the pools opened so far are closed again.
func (p *provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.open(ctx); err != nil {
		if closeErr := p.closeAll(); closeErr != nil {
			p.log.WithError(closeErr).Warn("Failed to close datasources after start failure")
		}

		return err
	}

	return nil
}

func (p *provider) open(ctx context.Context) error {
	for name, cfg := range p.cfg {
		db, err := Open(&cfg.DatabaseConfig)
		if err != nil {
			return fmt.Errorf("datasource %q: %w", name, err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("datasource %q: getting underlying db: %w", name, err)
		}

		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()

			return fmt.Errorf("datasource %q: ping: %w", name, err)
		}

		p.dbs[strings.ToLower(name)] = sqlDB

		p.log.WithFields(logrus.Fields{
			"datasource": name,
			"driver":     cfg.Driver,
		}).Info("Datasource connected")
	}

	return nil
}

// Stop closes every connection pool.
func (p *provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closeAll()
}

// closeAll closes and forgets every open pool. Callers hold p.mu.
func (p *provider) closeAll() error {
	var result *multierror.Error

	for name, db := range p.dbs {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing datasource %q: %w", name, err))
		}

		delete(p.dbs, name)
	}

	return result.ErrorOrNil()
}

// Conn acquires a dedicated connection from the named datasource's pool.
func (p *provider) Conn(ctx context.Context, name string) (Conn, error) {
	p.mu.RLock()
	db, ok := p.dbs[strings.ToLower(name)]
	p.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataSource, name)
	}

	c, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection to %q: %w", name, err)
	}

	return &conn{conn: c}, nil
}

type conn struct {
	conn *sql.Conn
}

// Execute runs a single statement. Row-returning statements are drained
// and their rows counted; other statements report rows affected.
func (c *conn) Execute(ctx context.Context, statement string) (*Result, error) {
	if IsSelectLike(statement) {
		return c.query(ctx, statement)
	}

	res, err := c.conn.ExecContext(ctx, statement)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}

	return &Result{RowsCount: affected}, nil
}

func (c *conn) query(ctx context.Context, statement string) (*Result, error) {
	rows, err := c.conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var count int64
	for rows.Next() {
		count++
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{RowsCount: count}, nil
}

// Close returns the connection to its pool.
func (c *conn) Close() error {
	return c.conn.Close()
}

var selectLikePrefixes = []string{"select", "show", "with", "explain", "values", "describe"}

// IsSelectLike reports whether the statement returns rows.
func IsSelectLike(statement string) bool {
	s := strings.ToLower(strings.TrimLeft(statement, " \t\r\n("))

	for _, prefix := range selectLikePrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}
