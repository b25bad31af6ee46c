package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Global error declarations.
var (
	ErrIntervalNotSupported = errors.New("timeframe not supported")
	ErrAssetNotFound        = errors.New("not found in datasource")
	ErrNoCandles            = errors.New("no candles found in datasource")
	ErrNoRunID              = errors.New("result has no run id")
)

//go:embed schema.sql
var schema string

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error)
}
type candlesRepository interface {
	GetAggregates(ctx context.Context, arg getAggregatesParams) ([]getAggregatesRow, error)
}
type resultsRepository interface {
	InsertResult(ctx context.Context, arg insertResultParams) error
}

// Options configures the pool and the connect retry.
type Options struct {
	URL            string
	MaxConns       int32
	ConnectTimeout time.Duration
	ConnectRetries uint64
}

// Database struct that holds the database connection and queries.
type Database struct {
	assets  assetsRepository
	candles candlesRepository
	results resultsRepository
	conn    *pgxpool.Pool
	logger  zerolog.Logger
}

// NewDatabase creates a new Database instance and verifies connectivity, retrying the
// first ping with exponential backoff.
func NewDatabase(ctx context.Context, opts Options, logger zerolog.Logger) (*Database, error) {
	config, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	logger = logger.With().Str("component", "repository").Logger()
	ping := func() error {
		pingCtx := ctx
		if opts.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
			defer cancel()
		}
		return conn.Ping(pingCtx)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.ConnectRetries), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", wait).Msg("database not reachable")
	}
	// Ensure the connection is established.
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	queries := newQueries(conn)
	return &Database{
		assets:  queries,
		candles: queries,
		results: queries,
		conn:    conn,
		logger:  logger,
	}, nil
}

// Migrate creates the tables the repository reads and writes when they are missing.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}
