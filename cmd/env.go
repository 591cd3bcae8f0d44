package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/usage-insight/internal/analysis"
	"github.com/sells-group/usage-insight/internal/oracle"
	"github.com/sells-group/usage-insight/internal/scan"
	"github.com/sells-group/usage-insight/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "usage.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initOracle returns nil when the AI reviewer is disabled.
func initOracle() (oracle.Oracle, error) {
	if !cfg.Oracle.Enabled {
		return nil, nil
	}
	o, err := oracle.NewAnthropicOracle(cfg.OracleSettings())
	if err != nil {
		return nil, eris.Wrap(err, "init oracle")
	}
	zap.L().Info("oracle enabled",
		zap.String("model", cfg.Oracle.Model),
		zap.Int("concurrency", cfg.Oracle.Concurrency),
	)
	return o, nil
}

func initScanner() (*scan.Scanner, error) {
	o, err := initOracle()
	if err != nil {
		return nil, err
	}
	return scan.New(o, cfg.ScanOptions()...), nil
}

// initAnalysis builds the analysis service and the scanner behind it. An
// enabled oracle both judges scanned months and reviews each energy kind.
func initAnalysis(st store.Store) (*analysis.Service, *scan.Scanner, error) {
	o, err := initOracle()
	if err != nil {
		return nil, nil, err
	}
	sc := scan.New(o, cfg.ScanOptions()...)

	var opts []analysis.Option
	if a, ok := o.(oracle.Analyst); ok {
		opts = append(opts, analysis.WithAnalyst(a))
	}
	return analysis.NewService(st, sc, cfg.AnalysisSettings(), opts...), sc, nil
}
