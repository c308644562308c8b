// Package router classifies inbound SQL text and dispatches each statement to the first
// handler of a fixed registry that claims it.
//
// A request is either a plan bypass ("execute plan <payload>"), which runs a textual
// operator tree directly, or SQL text. SQL text is split into statements; each statement
// is bound once against the data context and offered to the handlers in order. Routing
// stops at the first handler that performs a statement, so only the first claimed
// statement of a multi-statement request runs.
package router

import (
	"github.com/cockroachdb/errors"
	"github.com/xwb1989/sqlparser"
	"go.uber.org/zap"
	"mit.edu/dsg/sqlroute/common"
	"mit.edu/dsg/sqlroute/planner"
	"mit.edu/dsg/sqlroute/planspec"
	"mit.edu/dsg/sqlroute/session"
)

type Config struct {
	// Registry defaults to DefaultRegistry().
	Registry *Registry
	// PlanCache memoizes bypass plans. Without one, every bypass payload is compiled.
	PlanCache *planspec.Cache
	Logger    *zap.Logger
}

// Router is stateless between requests and safe for concurrent use; all per-request
// state lives in the DataContext.
type Router struct {
	registry *Registry
	plans    *planspec.Cache
	logger   *zap.Logger
}

func New(cfg Config) *Router {
	r := &Router{
		registry: cfg.Registry,
		plans:    cfg.PlanCache,
		logger:   cfg.Logger,
	}
	if r.registry == nil {
		r.registry = DefaultRegistry()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

func (r *Router) Registry() *Registry {
	return r.registry
}

// Route executes req and reports the outcome to resp.
func (r *Router) Route(req Request, dc DataContext, resp Response) {
	r.dispatch(req, dc, resp, false)
}

// Explain reports how req would be executed without running it. SQL text must hold a
// single statement.
func (r *Router) Explain(req Request, dc DataContext, resp Response) {
	r.dispatch(req, dc, resp, true)
}

func (r *Router) dispatch(req Request, dc DataContext, resp Response, explain bool) {
	text := req.Text()
	r.logger.Debug("routing request", zap.String("sql", text), zap.Bool("explain", explain))
	if err := dc.StartRequest(); err != nil {
		resp.SetHasMore(false)
		r.fail(dc, resp, err)
		return
	}

	if outcome, payload := Classify(text); outcome == OutcomePlanBypass {
		r.bypass(payload, dc, resp, explain)
		return
	}

	units, err := parseUnits(text)
	if err == nil && explain && len(units) != 1 {
		err = common.NewError(common.ParseError, "explain takes a single statement, got %d", len(units))
	}
	if err != nil {
		dc.ResetDiagnostics()
		r.fail(dc, resp, err)
		return
	}

	for i, u := range units {
		if _, diagnostics := u.stmt.(*sqlparser.Show); !diagnostics && !explain {
			dc.ResetDiagnostics()
		}
		resp.SetHasMore(i < len(units)-1)
		performed, err := r.dispatchUnit(req, u, dc, resp, explain)
		if err != nil {
			r.fail(dc, resp, errors.Wrapf(err, "%s", u.text))
			return
		}
		if performed {
			return
		}
	}

	last := units[len(units)-1]
	if classifyUnclaimed(last.stmt) == OutcomeDriverEcho {
		r.logger.Debug("echoing statement to driver", zap.String("sql", last.text))
		resp.ProxyShow(last.stmt)
		return
	}
	category := session.Category(last.stmt)
	r.logger.Error("unsupported statement", zap.String("sql", last.text), zap.String("category", category))
	r.fail(dc, resp, common.NewError(common.UnsupportedStatementError, "unsupported %s statement: %s", category, last.text))
}

// dispatchUnit binds u and offers it to each handler until one performs it.
func (r *Router) dispatchUnit(req Request, u unit, dc DataContext, resp Response, explain bool) (bool, error) {
	bound, err := dc.Bind(u.stmt)
	if err != nil {
		return false, err
	}
	sqlReq := &SQLRequest{Stmt: u.stmt, Text: u.text, Bound: bound, Origin: req}
	for _, h := range r.registry.handlers {
		var code ExecuteCode
		if explain {
			code, err = h.Explain(sqlReq, dc, resp)
		} else {
			code, err = h.Execute(sqlReq, dc, resp)
		}
		switch {
		case err != nil:
			return false, err
		case code == Failed:
			return false, common.NewError(common.UnsupportedStatementError, "handler %s failed", h.Name())
		case code == Performed:
			r.logger.Debug("statement performed", zap.String("handler", h.Name()))
			return true, nil
		}
	}
	return false, nil
}

// bypass compiles and runs a plan description.
func (r *Router) bypass(payload string, dc DataContext, resp Response, explain bool) {
	resp.SetHasMore(false)
	if !explain {
		dc.ResetDiagnostics()
	}
	plan, cached, err := r.compilePlan(payload, dc)
	if err != nil {
		r.fail(dc, resp, errors.Wrapf(err, "%s", planPrefix))
		return
	}
	r.logger.Debug("plan bypass", zap.Bool("cached", cached), zap.String("root", plan.Kind().String()))
	if explain {
		explainPlan(plan, resp)
		return
	}
	rs, err := dc.Query(plan)
	if err != nil {
		r.fail(dc, resp, errors.Wrapf(err, "%s", planPrefix))
		return
	}
	resp.SendResultSet(rs)
}

func (r *Router) compilePlan(payload string, dc DataContext) (*planner.PlanNode, bool, error) {
	if r.plans != nil {
		return r.plans.Get(payload, dc.Catalog(), dc, dc.PlanOptions())
	}
	spec, err := planspec.Parse(payload)
	if err != nil {
		return nil, false, err
	}
	plan, err := planspec.Compile(spec, dc, dc.PlanOptions())
	return plan, false, err
}

func (r *Router) fail(dc DataContext, resp Response, err error) {
	r.logger.Debug("request failed", zap.Error(err))
	dc.RecordError(err)
	resp.SendError(err)
}
