// Package mysql is a MySQL implementation of the loom.Datastore interface.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/WatchBeam/clock"
	"github.com/cenkalti/backoff/v4"
	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/loomhq/loom/server/config"
	"github.com/loomhq/loom/server/loom"
)

// sq builds queries with MySQL's ? placeholders.
var sq = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// Datastore is an implementation of loom.Datastore backed by MySQL.
type Datastore struct {
	db     *sqlx.DB
	logger kitlog.Logger
	clock  clock.Clock
	config config.MysqlConfig
}

// Option customizes a Datastore.
type Option func(*Datastore)

// WithLogger sets the datastore's logger.
func WithLogger(l kitlog.Logger) Option {
	return func(d *Datastore) { d.logger = l }
}

// WithClock sets the clock used for lease expirations and timestamps.
func WithClock(c clock.Clock) Option {
	return func(d *Datastore) { d.clock = c }
}

// newDriverConfig builds the driver configuration for the DSN.
func newDriverConfig(cfg config.MysqlConfig) *mysql.Config {
	driverCfg := mysql.NewConfig()
	driverCfg.Net = cfg.Protocol
	driverCfg.Addr = cfg.Address
	driverCfg.User = cfg.Username
	driverCfg.Passwd = cfg.Password
	driverCfg.DBName = cfg.Database
	driverCfg.ParseTime = true
	driverCfg.Loc = time.UTC
	// CLIENT_FOUND_ROWS makes UPDATE report matched rows rather than changed
	// rows. The lock extend step must count a no-op renewal (same expiration
	// after TIMESTAMP rounding) as holding the lease.
	driverCfg.ClientFoundRows = true
	return driverCfg
}

// New connects to MySQL per the config and returns the Datastore. The
// connection is retried with exponential backoff so the server can start
// before its database is reachable.
func New(cfg config.MysqlConfig, opts ...Option) (*Datastore, error) {
	db, err := sqlx.Open("mysql", newDriverConfig(cfg).FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ds := &Datastore{
		db:     db,
		logger: kitlog.NewNopLogger(),
		clock:  clock.C,
		config: cfg,
	}
	for _, opt := range opts {
		opt(ds)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 1 * time.Minute
	if err := backoff.Retry(func() error {
		if err := db.Ping(); err != nil {
			level.Debug(ds.logger).Log("msg", "waiting for mysql", "err", err)
			return err
		}
		return nil
	}, bo); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return ds, nil
}

// Close releases the underlying connection pool.
func (d *Datastore) Close() error {
	return d.db.Close()
}

// execOne runs a statement and reports whether it affected any row.
func (d *Datastore) execOne(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// isNoRows normalizes the driver's empty-result error.
func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}

var _ loom.Datastore = (*Datastore)(nil)
