package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"atlas/internal/repository"
	"atlas/strategies"
	"atlas/types"

	"github.com/spf13/cobra"
)

var errNoDataSource = errors.New("either --csv or --ticker with a configured database is required")

// dataFlags selects the market data shared by the windows and run commands.
type dataFlags struct {
	csvPath  string
	ticker   string
	from     string
	to       string
	interval string
}

func (d *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.csvPath, "csv", "", "Read bars from a CSV file")
	cmd.Flags().StringVar(&d.ticker, "ticker", "", "Ticker to load (CSV: label only; database: lookup key)")
	cmd.Flags().StringVar(&d.from, "from", "", "First date to load from the database (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.to, "to", "", "Exclusive end date for the database load (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&d.interval, "interval", "", "Bar interval (default backtest.interval)")
}

func (d *dataFlags) load(ctx context.Context, db *lazyDatabase) (types.Series, error) {
	interval, err := types.ParseInterval(cmp.Or(d.interval, cfg.Backtest.Interval))
	if err != nil {
		return types.Series{}, err
	}
	if d.csvPath != "" {
		f, err := os.Open(d.csvPath)
		if err != nil {
			return types.Series{}, err
		}
		defer f.Close()
		ticker := cmp.Or(d.ticker, strings.TrimSuffix(filepath.Base(d.csvPath), filepath.Ext(d.csvPath)))
		return repository.LoadCSV(f, ticker, interval)
	}
	if d.ticker == "" || cfg.Database.URL == "" {
		return types.Series{}, errNoDataSource
	}
	start, end, err := d.dateRange()
	if err != nil {
		return types.Series{}, err
	}
	conn, err := db.get(ctx)
	if err != nil {
		return types.Series{}, err
	}
	return conn.LoadSeries(ctx, d.ticker, interval, start, end)
}

func (d *dataFlags) dateRange() (time.Time, time.Time, error) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	var start time.Time
	if d.from != "" {
		t, err := time.Parse(time.DateOnly, d.from)
		if err != nil {
			return start, end, fmt.Errorf("--from: %w", err)
		}
		start = t
	}
	if d.to != "" {
		t, err := time.Parse(time.DateOnly, d.to)
		if err != nil {
			return start, end, fmt.Errorf("--to: %w", err)
		}
		end = t
	}
	if !start.Before(end) {
		return start, end, fmt.Errorf("empty date range %s to %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}

// loadStrategies resolves each argument as a .star file when it exists on disk and as a
// seed name otherwise. No arguments selects every seed.
func loadStrategies(args []string) ([]types.CandidateCode, error) {
	if len(args) == 0 {
		return strategies.All(), nil
	}
	codes := make([]types.CandidateCode, 0, len(args))
	for _, arg := range args {
		raw, err := os.ReadFile(arg)
		switch {
		case err == nil:
			id := strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
			codes = append(codes, types.NewCandidateCode(id, string(raw)))
		case errors.Is(err, os.ErrNotExist):
			code, err := strategies.Get(arg)
			if err != nil {
				return nil, err
			}
			codes = append(codes, code)
		default:
			return nil, err
		}
	}
	return codes, nil
}

// lazyDatabase connects on first use so commands reading CSV never touch Postgres.
type lazyDatabase struct {
	db *repository.Database
}

func (l *lazyDatabase) get(ctx context.Context) (*repository.Database, error) {
	if l.db != nil {
		return l.db, nil
	}
	db, err := openDatabase(ctx)
	if err != nil {
		return nil, err
	}
	l.db = db
	return db, nil
}

func (l *lazyDatabase) Close() {
	if l.db != nil {
		l.db.Close()
	}
}

func openDatabase(ctx context.Context) (*repository.Database, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is not configured")
	}
	return repository.NewDatabase(ctx, repository.Options{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		ConnectRetries: cfg.Database.ConnectRetries,
	}, logger)
}
