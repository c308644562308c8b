package sqlroute

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	// Imports all sub-components
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/config"
	"mit.edu/dsg/sqlroute/planspec"
	"mit.edu/dsg/sqlroute/router"
	"mit.edu/dsg/sqlroute/session"
	"mit.edu/dsg/sqlroute/storage"
)

// Engine is the top-level container for the routing core.
type Engine struct {
	Config   *config.Config
	Catalog  *catalog.Catalog
	Store    *storage.Store
	Sessions *session.Manager
	Router   *router.Router
	Logger   *zap.Logger
}

// New builds an engine and creates the configured databases. A nil logger discards
// output.
func New(cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cat := catalog.NewCatalog()
	for _, db := range cfg.Databases {
		if err := cat.CreateDatabase(db, true); err != nil {
			return nil, errors.Wrapf(err, "create database %s", db)
		}
	}
	store := storage.NewStore()
	sessions := session.NewManager(cat, store, session.Config{
		DefaultSchema: cfg.DefaultSchema,
		Plan:          cfg.PlanOptions(),
		Logger:        logger.Named("session"),
	})

	var plans *planspec.Cache
	if cfg.PlanCache.Enabled {
		plans = planspec.NewCache(cfg.PlanCache.MaxEntries)
	}
	r := router.New(router.Config{PlanCache: plans, Logger: logger.Named("router")})

	logger.Info("engine started",
		zap.Strings("databases", cat.Databases()),
		zap.String("join_algorithm", cfg.Executor.JoinAlgorithm),
		zap.Bool("plan_cache", plans != nil))
	return &Engine{
		Config:   cfg,
		Catalog:  cat,
		Store:    store,
		Sessions: sessions,
		Router:   r,
		Logger:   logger,
	}, nil
}

func (e *Engine) NewSession() *session.Session {
	return e.Sessions.NewSession()
}

// Execute routes sql in sess and returns what the router reported.
func (e *Engine) Execute(sess *session.Session, sql string) *router.ResponseBuffer {
	resp := &router.ResponseBuffer{}
	e.Router.Route(router.TextRequest(sql), sess, resp)
	return resp
}

// Explain describes how sql would run in sess without running it.
func (e *Engine) Explain(sess *session.Session, sql string) *router.ResponseBuffer {
	resp := &router.ResponseBuffer{}
	e.Router.Explain(router.TextRequest(sql), sess, resp)
	return resp
}
