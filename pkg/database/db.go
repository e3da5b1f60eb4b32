package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Executor is the query surface shared by *sqlx.DB and *sqlx.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

type DB interface {
	Executor
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	PingContext(ctx context.Context) error
	Close() error
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

// Config holds the Postgres connection settings
type Config struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Connect opens a pooled Postgres connection and verifies it
func Connect(ctx context.Context, cfg Config, logger ectologger.Logger) (DB, *sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to postgres at %s:%s: %w", cfg.Host, cfg.Port, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	logger.Infof("Connected to postgres at %s:%s/%s", cfg.Host, cfg.Port, cfg.Name)
	return NewDatabaseInstance(db, logger), db, nil
}

func (db *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}

func (db *DatabaseInstance) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, db.logger, db, fn)
}

// Conn returns the transaction carried by ctx when one is open, otherwise db itself
func Conn(ctx context.Context, db DB) Executor {
	if tx, ok := ctx.Value(txKey).(Tx); ok && tx != nil && tx.IsOpen() {
		return tx
	}
	return db
}
