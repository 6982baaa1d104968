// Package provision drives an external multi-step web workflow once per
// gateway port, strictly in port order, with per-port failure isolation.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gwprov/internal/browser"
	"gwprov/internal/contact"
	"gwprov/internal/logging"
	"gwprov/internal/portdata"
	"gwprov/internal/runlog"
)

// pageTextLines is how much of the page is logged after a failure.
const pageTextLines = 10

// Engine runs one workflow against one page. It is not safe for concurrent use.
type Engine struct {
	page     browser.Page
	wf       Workflow
	policy   contact.Policy
	runLog   *runlog.Log
	recorder Recorder
	gateway  string
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	poll     time.Duration
	log      *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder receives every decided outcome.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithGateway tags outcomes with the gateway ID.
func WithGateway(id string) Option {
	return func(e *Engine) { e.gateway = id }
}

// WithSleep replaces the settle delay implementation.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithClock replaces time.Now for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPollInterval sets how often submit markers are checked.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.poll = d }
}

// NewEngine validates wf and returns an engine writing to runLog.
func NewEngine(page browser.Page, wf Workflow, policy contact.Policy, runLog *runlog.Log, opts ...Option) (*Engine, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		page:   page,
		wf:     wf,
		policy: policy,
		runLog: runLog,
		sleep:  sleep,
		now:    time.Now,
		poll:   250 * time.Millisecond,
	}
	for _, o := range opts {
		o(e)
	}
	e.log = logging.Get(logging.CategoryProvision).With("workflow", wf.Name, "gateway", e.gateway)
	return e, nil
}

// Result is what a run produced.
type Result struct {
	Workflow string
	Gateway  string
	Start    portdata.Key
	Outcomes []Outcome
	// Attempted is the number of ports that got past Init, which is also the
	// final email rotation counter.
	Attempted int
	Aborted   bool
	AbortedAt portdata.Key
}

// Summary tallies the run's outcomes.
func (r Result) Summary() Summary {
	return Summarize(r.Outcomes)
}

// cycle is the state threaded through one port's pass of the machine.
type cycle struct {
	port      portdata.Key
	record    portdata.Record
	counter   int // email rotation index for this port
	email     string
	attempted bool
	outcome   *Outcome
	err       error // abort cause
}

func (c *cycle) fail(stage State, detail string) {
	c.outcome = &Outcome{Port: c.port, Kind: KindFailed, Stage: stage.String(), Detail: detail, Email: c.email}
}

// Run provisions ports start..64 from ds. It returns an error only when the
// run aborted; per-port failures are in Result.Outcomes and the run log.
func (e *Engine) Run(ctx context.Context, ds *portdata.GatewayDataset, start int) (Result, error) {
	start = max(1, min(portdata.PortCount, start))
	res := Result{Workflow: e.wf.Name, Gateway: e.gateway, Start: portdata.KeyFor(start)}

	e.runLog.Header(e.wf.Name)
	e.runLog.Eventf(runlog.RunPort, runlog.EventStart, "gateway=%s ports=A%d..A%d email=%s",
		e.gateway, start, portdata.PortCount, e.policy.Describe())
	e.log.Info("starting %s loop from port A%d", e.wf.Name, start)

	// Start from a known page, the same way every port after this one does.
	if err := e.page.Navigate(ctx, e.wf.EntryURL, e.wf.NavigationTimeout); err != nil {
		if e.fatal(ctx, err) {
			return e.abort(res, res.Start, err)
		}
		e.log.Warn("could not navigate to entry page before starting loop: %v", err)
	} else if err := e.sleep(ctx, e.wf.Settle); err != nil {
		return e.abort(res, res.Start, err)
	}

	counter := 0
	for i := start; i <= portdata.PortCount; i++ {
		key := portdata.KeyFor(i)
		c := &cycle{port: key, record: ds.Record(key), counter: counter}

		state := StateInit
		for !state.Terminal() {
			state = e.step(ctx, state, c)
		}
		if c.outcome != nil {
			res.Outcomes = append(res.Outcomes, *c.outcome)
		}
		if state == StateAbort {
			res.Attempted = counter
			return e.abort(res, key, c.err)
		}
		if c.attempted {
			counter++
		}
	}
	res.Attempted = counter

	sum := res.Summary()
	e.runLog.Event(runlog.RunPort, runlog.EventSummary, sum.String())
	e.log.Info("%s run complete: %s", e.wf.Name, sum)
	return res, nil
}

func (e *Engine) abort(res Result, at portdata.Key, cause error) (Result, error) {
	if cause == nil {
		cause = browser.ErrSessionClosed
	}
	res.Aborted = true
	res.AbortedAt = at
	e.runLog.Eventf(string(at), runlog.EventFatal, "%v. Aborting remaining ports.", cause)
	e.runLog.Event(runlog.RunPort, runlog.EventSummary, res.Summary().String()+" aborted=true")
	e.log.Error("%s run aborted at %s: %v", e.wf.Name, at, cause)
	return res, fmt.Errorf("%s run aborted at %s: %w", e.wf.Name, at, cause)
}

// step is the transition function of the per-port machine.
func (e *Engine) step(ctx context.Context, s State, c *cycle) State {
	switch s {
	case StateInit:
		return e.initPort(ctx, c)
	case StateFillIdentifierA, StateContinue1, StateFillIdentifierB, StateContinue2, StateFillAccountDetails:
		return e.formStep(ctx, s, c)
	case StateSubmit:
		return e.submit(ctx, c)
	case StateSuccess:
		e.runLog.Eventf(string(c.port), runlog.EventSuccess, "%s completed. URL:%s", strings.ToLower(e.wf.Name), c.outcome.URL)
		e.log.Info("%s SUCCESS", c.port)
		e.record(ctx, c)
		return StateReset
	case StateFailure:
		return e.failed(ctx, c)
	case StateReset:
		return e.reset(ctx, c)
	}
	c.err = fmt.Errorf("no transition from state %s", s)
	return StateAbort
}

func (e *Engine) initPort(ctx context.Context, c *cycle) State {
	if err := e.liveness(ctx); err != nil {
		c.err = err
		return StateAbort
	}
	for _, attr := range e.wf.Required {
		if _, ok := c.record.Value(attr); !ok {
			c.outcome = &Outcome{Port: c.port, Kind: KindSkipped, Detail: attr.Label() + " is null or missing"}
			e.runLog.Event(string(c.port), runlog.EventSkipped, c.outcome.Detail)
			e.log.Debug("%s skipped: %s", c.port, c.outcome.Detail)
			e.record(ctx, c)
			return StateNext
		}
	}

	c.attempted = true
	c.email = e.policy.Select(c.counter)

	var ids []string
	for _, attr := range e.wf.Required {
		v, _ := c.record.Value(attr)
		ids = append(ids, attr.Label()+":"+v)
	}
	e.runLog.Eventf(string(c.port), runlog.EventStart, "%s EMAIL:%s", strings.Join(ids, " "), c.email)
	return StateFillIdentifierA
}

func (e *Engine) formStep(ctx context.Context, s State, c *cycle) State {
	for _, a := range e.wf.Steps[s] {
		if err := e.perform(ctx, a, c); err != nil {
			if e.fatal(ctx, err) {
				c.err = err
				return StateAbort
			}
			c.fail(s, err.Error())
			// no partial submission: skip the remaining steps for this port
			return e.failed(ctx, c)
		}
	}
	return after(s)
}

func (e *Engine) submit(ctx context.Context, c *cycle) State {
	for _, a := range e.wf.Steps[StateSubmit] {
		if err := e.perform(ctx, a, c); err != nil {
			if e.fatal(ctx, err) {
				c.err = err
				return StateAbort
			}
			c.fail(StateSubmit, err.Error())
			return StateFailure
		}
	}

	ok, detail, err := e.awaitMarkers(ctx)
	if err != nil {
		c.err = err
		return StateAbort
	}
	if !ok {
		c.fail(StateSubmit, detail)
		return StateFailure
	}
	c.outcome = &Outcome{Port: c.port, Kind: KindSuccess, Email: c.email, URL: e.page.CurrentURL()}
	return StateSuccess
}

// failed logs and records c's failure, then resets.
func (e *Engine) failed(ctx context.Context, c *cycle) State {
	o := c.outcome
	e.runLog.Eventf(string(c.port), runlog.EventError, "stage=%s: %s", o.Stage, o.Detail)
	e.runLog.PageText(string(c.port), browser.FirstLines(ctx, e.page, pageTextLines))
	e.log.Warn("%s failed at %s: %s", c.port, o.Stage, o.Detail)
	e.record(ctx, c)
	return StateReset
}

// reset returns to the entry page and waits the settle interval, whatever
// happened to the port before.
func (e *Engine) reset(ctx context.Context, c *cycle) State {
	e.runLog.Event(string(c.port), runlog.EventReset, "cycle complete, navigating back to entry page")
	if err := e.page.Navigate(ctx, e.wf.EntryURL, e.wf.NavigationTimeout); err != nil {
		if e.fatal(ctx, err) {
			c.err = err
			return StateAbort
		}
		e.runLog.Eventf(string(c.port), runlog.EventError, "could not navigate to entry page: %v", err)
		e.log.Warn("%s reset navigation failed: %v", c.port, err)
	}
	if err := e.sleep(ctx, e.wf.Settle); err != nil {
		c.err = err
		return StateAbort
	}
	return StateNext
}

func (e *Engine) perform(ctx context.Context, a Action, c *cycle) error {
	el, err := browser.WaitFor(ctx, e.page, a.Target, e.wf.actionWait(a))
	if err != nil {
		return fmt.Errorf("%s did not appear: %w", a.Target, err)
	}

	actx, cancel := context.WithTimeout(ctx, e.wf.ActionTimeout)
	defer cancel()

	switch a.Kind {
	case ActionFill:
		text, err := a.Value.resolve(c.record, c.email)
		if err != nil {
			return fmt.Errorf("fill %s: %w", a.Target, err)
		}
		if err := el.Click(actx); err != nil {
			return fmt.Errorf("focus %s: %w", a.Target, err)
		}
		if err := el.Fill(actx, text); err != nil {
			return fmt.Errorf("fill %s: %w", a.Target, err)
		}
	case ActionClick:
		if err := el.Click(actx); err != nil {
			return fmt.Errorf("click %s: %w", a.Target, err)
		}
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	return nil
}

// awaitMarkers polls for the success or failure marker after submit. ok is
// false with a detail when the failure marker shows or time runs out. err is
// set only for fatal conditions.
func (e *Engine) awaitMarkers(ctx context.Context) (ok bool, detail string, err error) {
	wctx, cancel := context.WithTimeout(ctx, e.wf.SubmitWait)
	defer cancel()

	for {
		if err := e.liveness(ctx); err != nil {
			return false, "", err
		}
		if e.matches(wctx, e.wf.Success) {
			return true, "", nil
		}
		if !e.wf.Failure.Empty() && e.matches(wctx, e.wf.Failure) {
			return false, "landed on error page (URL: " + e.page.CurrentURL() + ")", nil
		}
		select {
		case <-wctx.Done():
			if err := ctx.Err(); err != nil {
				return false, "", err
			}
			return false, fmt.Sprintf("%s not found within %s", e.wf.Success, e.wf.SubmitWait), nil
		case <-time.After(e.poll):
		}
	}
}

func (e *Engine) matches(ctx context.Context, m Marker) bool {
	if m.URLContains != "" && strings.Contains(e.page.CurrentURL(), m.URLContains) {
		return true
	}
	if m.Locator != nil {
		el, err := e.page.Locate(ctx, *m.Locator)
		return err == nil && el.Visible()
	}
	return false
}

func (e *Engine) record(ctx context.Context, c *cycle) {
	if c.outcome == nil {
		return
	}
	c.outcome.Workflow = e.wf.Name
	c.outcome.Gateway = e.gateway
	c.outcome.At = e.now()
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordOutcome(ctx, *c.outcome); err != nil {
		e.log.Warn("failed to record outcome for %s: %v", c.port, err)
	}
}

func (e *Engine) liveness(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.page.Closed() {
		return browser.ErrSessionClosed
	}
	return nil
}

// fatal reports whether err ends the run: a closed page or a cancelled run.
func (e *Engine) fatal(ctx context.Context, err error) bool {
	if browser.IsFatal(err) || e.page.Closed() {
		return true
	}
	return ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
