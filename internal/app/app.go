package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/pool"

	"github.com/riskibarqy/wellness-api/internal/config"
	"github.com/riskibarqy/wellness-api/internal/infrastructure/database"
	"github.com/riskibarqy/wellness-api/internal/interfaces/httpapi"
	"github.com/riskibarqy/wellness-api/internal/observability"
	"github.com/riskibarqy/wellness-api/internal/platform/logging"
)

const shutdownTimeout = 10 * time.Second

// App owns the process-wide resources. It is built once in main and torn
// down with Close; nothing here is stored in package globals.
type App struct {
	cfg    config.Config
	logger *logging.Logger
	db     *database.Engine
	http   *http.Server
	pprof  *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	opts, err := database.OptionsFromConfig(cfg)
	if err != nil {
		return nil, crerr.Wrap(err, "database options")
	}
	db, err := database.Open(ctx, opts, logger)
	if err != nil {
		return nil, crerr.Wrap(err, "open database")
	}

	handler := httpapi.NewHandler(db, logger)
	router := httpapi.NewRouter(handler, cfg.ServiceName, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		pprof: observability.NewPprofServer(cfg),
	}, nil
}

func (a *App) Database() *database.Engine {
	return a.db
}

// Run serves until ctx is cancelled or a server fails, then shuts the
// servers down.
func (a *App) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		return serve(ctx, a.http, "http", a.logger)
	})
	if a.pprof != nil {
		p.Go(func(ctx context.Context) error {
			return serve(ctx, a.pprof, "pprof", a.logger)
		})
	}
	return p.Wait()
}

func (a *App) Close() error {
	return a.db.Close()
}

func serve(ctx context.Context, srv *http.Server, name string, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return crerr.Wrapf(err, "%s server", name)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return crerr.Wrapf(err, "shutdown %s server", name)
	}
	logger.Info(name + " server stopped")
	return nil
}
