package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/r74tech/raven-front/api/handlers"
	"github.com/r74tech/raven-front/config"
	"github.com/r74tech/raven-front/db/kvdb"
	"github.com/r74tech/raven-front/db/searchdb"
	"github.com/r74tech/raven-front/logger"
	"github.com/r74tech/raven-front/services/search"
	"github.com/r74tech/raven-front/services/settings"
	"github.com/r74tech/raven-front/ui"
	"github.com/r74tech/raven-front/validation"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server
	kvdb       kvdb.DB
	engine     searchdb.Engine
	validator  *validation.Validator
	renderer   *ui.Renderer
	logger     logger.Logger
}

// Run serves until ctx is cancelled or the process is interrupted, then shuts down
// gracefully.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := &server{
		cfg:    cfg,
		logger: logger.NewWithLevel(cfg.GetLogLevel()),
	}
	if err := s.setupDependencies(); err != nil {
		return err
	}
	s.setupRouter()

	return s.serve(ctx)
}

// NewEngine opens the configured search engine: the hosted one, or a local bleve index.
func NewEngine(logger logger.Logger, cfg *config.Config) (searchdb.Engine, error) {
	if cfg.GetSearchEngine() == config.EngineLocal {
		index, err := searchdb.New(logger, cfg)
		if err != nil {
			return nil, err
		}
		return index, nil
	}
	return searchdb.NewMeili(logger, cfg), nil
}

func (s *server) setupDependencies() error {
	var err error
	s.kvdb, err = kvdb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating kvDB", "err", err.Error())
		return err
	}
	s.engine, err = NewEngine(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating search engine", "engine", s.cfg.GetSearchEngine(), "err", err.Error())
		s.kvdb.Close()
		return err
	}
	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		s.close()
		return err
	}
	s.renderer, err = ui.New()
	if err != nil {
		s.logger.Error("error parsing templates", "err", err.Error())
		s.close()
		return err
	}

	return nil

}

func (s *server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := newRouter(s.logger, s.cfg.GetAllowedOrigins(), s.cfg.GetSecureCookies())

	defaults := search.DefaultSettings(s.cfg.GetMeilisearchAPIKey(), s.cfg.GetDefaultIndex())
	link := search.LinkTemplate{Scheme: s.cfg.GetLinkScheme(), HostSuffix: s.cfg.GetLinkHostSuffix()}
	discoveryRate := s.cfg.GetIndexDiscoveryRate()

	setupRoutes(router, s.logger, routeDependencies{
		service:        search.New(s.logger, s.engine, link),
		store:          settings.New(s.logger, s.kvdb, defaults),
		validator:      s.validator,
		renderer:       s.renderer,
		indexesLimiter: rate.NewLimiter(rate.Limit(discoveryRate), max(int(discoveryRate), 1)),
		allowedOrigins: s.cfg.GetAllowedOrigins(),
		live: handlers.LiveOptions{
			AllowedOrigins: s.cfg.GetAllowedOrigins(),
			PollInterval:   s.cfg.GetViewportPollInterval(),
			QueryRate:      s.cfg.GetLiveQueryRate(),
		},
	})

	s.router = router
}

func (s *server) serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", s.cfg.GetPort()),
		Handler:           s.router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// live sessions outlive Shutdown unless their context ends with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	listenErr := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr, "engine", s.cfg.GetSearchEngine())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err, ok := <-listenErr:
		s.close()
		if ok {
			s.logger.Error("http server stopped", "err", err.Error())
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("starting to shut down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	defer s.close()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("error shutting down http server", "err", err)
		return err
	}
	s.logger.Info("shut down http server successfully")

	return nil
}

func (s *server) close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("error closing search engine", "err", err.Error())
	}
	if err := s.kvdb.Close(); err != nil {
		s.logger.Warn("error closing kvDB", "err", err.Error())
	}
}
