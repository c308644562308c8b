package session

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/storage"
	"mit.edu/dsg/sqlroute/transaction"
)

// Config holds the settings shared by every session of a Manager.
type Config struct {
	// DefaultSchema is the schema a new session starts in. Empty means none.
	DefaultSchema string
	Plan          planner.Options
	Logger        *zap.Logger
}

// Manager owns the state shared between sessions: the catalog, the table store, the
// transaction manager and the global system variables. It is safe for concurrent use.
type Manager struct {
	catalog *catalog.Catalog
	store   *storage.Store
	tm      *transaction.TransactionManager
	cfg     Config
	logger  *zap.Logger

	globals    *xsync.MapOf[string, common.Value]
	sessions   *xsync.MapOf[uint32, *Session]
	nextConnID atomic.Uint32
}

// NewManager creates a manager over an existing catalog and store.
func NewManager(cat *catalog.Catalog, store *storage.Store, cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		catalog:  cat,
		store:    store,
		tm:       transaction.NewTransactionManager(),
		cfg:      cfg,
		logger:   logger,
		globals:  xsync.NewMapOf[string, common.Value](),
		sessions: xsync.NewMapOf[uint32, *Session](),
	}
	for name, v := range defaultVariables() {
		m.globals.Store(name, v)
	}
	return m
}

func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

func (m *Manager) Store() *storage.Store {
	return m.store
}

func (m *Manager) TransactionManager() *transaction.TransactionManager {
	return m.tm
}

// NewSession opens a session. Session variables start as a copy of the current globals.
// The session is listed by Processes until it is closed.
func (m *Manager) NewSession() *Session {
	s := &Session{
		mgr:      m,
		id:       m.nextConnID.Add(1),
		opened:   time.Now(),
		vars:     make(map[string]common.Value),
		userVars: make(map[string]common.Value),
	}
	s.setSchema(m.cfg.DefaultSchema)
	s.lastActive.Store(s.opened.UnixNano())
	m.globals.Range(func(name string, v common.Value) bool {
		s.vars[name] = v
		return true
	})
	s.logger = m.logger.With(zap.Uint32("conn", s.id))
	m.sessions.Store(s.id, s)
	return s
}

// Process describes an open session for SHOW PROCESSLIST.
type Process struct {
	ID uint32
	// DB is the current schema, "" when none is selected.
	DB     string
	Killed bool
	// Idle is the time since the session last started a request.
	Idle time.Duration
}

// Processes lists the open sessions ordered by connection id.
func (m *Manager) Processes() []Process {
	now := time.Now()
	var out []Process
	m.sessions.Range(func(id uint32, s *Session) bool {
		out = append(out, Process{
			ID:     id,
			DB:     *s.published.Load(),
			Killed: s.killed.Load(),
			Idle:   now.Sub(time.Unix(0, s.lastActive.Load())),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Kill ends the session with the given connection id. The session fails its next request
// and rolls back its open transaction. With query set only the running statement is
// targeted; statements run to completion, so that leaves the session untouched.
func (m *Manager) Kill(id uint32, query bool) error {
	s, ok := m.sessions.Load(id)
	if !ok {
		return common.NewError(common.NoSuchObjectError, "Unknown thread id: %d", id)
	}
	if !query {
		s.killed.Store(true)
	}
	m.logger.Info("killed session", zap.Uint32("conn", id), zap.Bool("query", query))
	return nil
}
