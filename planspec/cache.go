package planspec

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/sqlroute/catalog"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
)

// DefaultMaxEntries bounds a cache built with a non-positive size.
const DefaultMaxEntries = 1024

type cacheKey struct {
	version uint64
	schema  string
	payload string
}

// Cache memoizes compiled plans per catalog version, current schema and payload. Plans
// are immutable, so one compiled plan is shared by every session that submits the same
// payload. Plans that read session variables are never cached. The cache is safe for
// concurrent use.
type Cache struct {
	plans      *xsync.MapOf[cacheKey, *planner.PlanNode]
	maxEntries int
}

func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		plans:      xsync.NewMapOf[cacheKey, *planner.PlanNode](),
		maxEntries: maxEntries,
	}
}

// variableTracker records whether compilation consulted a variable.
type variableTracker struct {
	planner.Resolver
	used bool
}

func (v *variableTracker) Variable(name string) (common.Value, bool) {
	v.used = true
	return v.Resolver.Variable(name)
}

// Get returns the plan for payload, compiling it on a miss. cat supplies the version
// that invalidates plans compiled before a DDL change.
func (c *Cache) Get(payload string, cat *catalog.Catalog, res planner.Resolver, opts planner.Options) (plan *planner.PlanNode, hit bool, err error) {
	key := cacheKey{
		version: cat.Version(),
		schema:  strings.ToLower(res.Schema()),
		payload: payload,
	}
	if plan, ok := c.plans.Load(key); ok {
		return plan, true, nil
	}

	spec, err := Parse(payload)
	if err != nil {
		return nil, false, err
	}
	tracker := &variableTracker{Resolver: res}
	if plan, err = Compile(spec, tracker, opts); err != nil {
		return nil, false, err
	}
	if tracker.used {
		return plan, false, nil
	}
	if c.plans.Size() >= c.maxEntries {
		c.plans.Clear()
	}
	c.plans.Store(key, plan)
	return plan, false, nil
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	return c.plans.Size()
}
