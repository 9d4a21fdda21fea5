// Package pool opens and tunes the database handles behind SQL record
// stores. One application may configure several databases; the default
// one backs the catalog viewsets.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/gnemet/viewsets/store/sqlstore"
)

// Defaults applied to zero tuning values.
const (
	DefaultMaxConnections = 10
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultMaxLifetime    = time.Hour
	pingTimeout           = 5 * time.Second
)

// Config describes one database connection.
type Config struct {
	Name     string `yaml:"name"`
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	// DSN overrides the connection string built from the fields above.
	DSN     string `yaml:"dsn"`
	Default bool   `yaml:"default"`

	MaxConnections int           `yaml:"max_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
}

// ErrUnknownDriver is returned for drivers without a registered dialect.
var ErrUnknownDriver = errors.New("unknown database driver")

// DriverName returns the database/sql driver name of c. Postgres is the
// default.
func (c Config) DriverName() (string, error) {
	switch strings.ToLower(c.Driver) {
	case "", "postgres", "postgresql", "pq":
		return "postgres", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "mysql", "mariadb":
		return "mysql", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
}

// DataSourceName builds the connection string of c.
func (c Config) DataSourceName() (string, error) {
	driver, err := c.DriverName()
	if err != nil {
		return "", err
	}
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch driver {
	case "sqlite":
		if c.isMemory() {
			return "file::memory:?_time_format=sqlite", nil
		}
		return "file:" + c.Database + "?_time_format=sqlite", nil
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(or(c.Host, "localhost"), or(c.Port, "3306"))
		mc.DBName = c.Database
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN(), nil
	}
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		or(c.Host, "localhost"), or(c.Port, "5432"), quote(c.User), quote(c.Password), quote(c.Database))
	if c.Schema != "" {
		dsn += fmt.Sprintf(" search_path=%s,public", c.Schema)
	}
	return dsn, nil
}

func (c Config) isMemory() bool {
	return c.Database == "" || c.Database == ":memory:"
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// quote protects libpq key/value pairs holding spaces or quotes.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	s = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
	return "'" + s + "'"
}

// DB is an open, tuned database handle with the dialect of its driver.
type DB struct {
	*sql.DB
	Name    string
	Dialect sqlstore.Dialect
}

// Open opens the database of cfg, tunes its connection pool and pings it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := cfg.DriverName()
	if err != nil {
		return nil, err
	}
	dialect, err := sqlstore.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	if driver == "sqlite" && cfg.DSN == "" && cfg.isMemory() {
		// Every connection would open its own in-memory database.
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/2))
	db.SetConnMaxLifetime(orDuration(cfg.MaxLifetime, DefaultMaxLifetime))
	db.SetConnMaxIdleTime(orDuration(cfg.IdleTimeout, DefaultIdleTimeout))

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	logger.Info("database connected", "name", cfg.Name, "driver", driver, "max_connections", maxConns)
	return &DB{DB: db, Name: cfg.Name, Dialect: dialect}, nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Store returns a record store over table t of db.
func (db *DB) Store(t sqlstore.Table, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	return sqlstore.New(db.DB, db.Dialect, t, opts...)
}

// Pool holds the configured databases by name.
type Pool struct {
	mu     sync.Mutex
	dbs    map[string]*DB
	def    string
	logger *slog.Logger
}

// New opens every database of cfgs. The first database marked default,
// else the first one, becomes the default.
func New(ctx context.Context, cfgs []Config, logger *slog.Logger) (*Pool, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no database configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{dbs: make(map[string]*DB, len(cfgs)), logger: logger}
	marked := false
	for i, cfg := range cfgs {
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("db%d", i)
		}
		if _, dup := p.dbs[cfg.Name]; dup {
			p.Close()
			return nil, fmt.Errorf("duplicate database %q", cfg.Name)
		}
		db, err := Open(ctx, cfg, logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.dbs[cfg.Name] = db
		if p.def == "" || (cfg.Default && !marked) {
			p.def = cfg.Name
			marked = cfg.Default
		}
	}
	return p, nil
}

// Get returns the database named name, the default one for "".
func (p *Pool) Get(name string) (*DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name == "" {
		name = p.def
	}
	db, ok := p.dbs[name]
	if !ok {
		return nil, fmt.Errorf("database %q is not configured", name)
	}
	return db, nil
}

// Default returns the default database.
func (p *Pool) Default() *DB {
	db, _ := p.Get("")
	return db
}

// Close closes every database of the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for name, db := range p.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		} else {
			p.logger.Debug("database closed", "name", name)
		}
		delete(p.dbs, name)
	}
	return errors.Join(errs...)
}
