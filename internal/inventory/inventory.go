// Package inventory scrapes every port of one or more gateways into a
// classified report. Gateways run concurrently, each on its own page; the
// work within a gateway stays sequential.
package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gwprov/internal/browser"
	"gwprov/internal/classify"
	"gwprov/internal/collect"
	"gwprov/internal/logging"
	"gwprov/internal/portdata"
)

// Console is the gateway surface an inventory needs.
type Console interface {
	collect.Console
	Login(ctx context.Context) error
	OpenPortSettings(ctx context.Context) error
	PortStatusCells(ctx context.Context) (map[portdata.Key]string, error)
}

// Opener opens a console on a fresh page for one gateway. release closes the
// page and is called exactly once when err is nil.
type Opener func(ctx context.Context, gatewayID string) (c Console, release func(), err error)

// GatewayResult is one gateway's share of a report.
type GatewayResult struct {
	Gateway string
	Dataset *portdata.GatewayDataset
	Stats   []collect.Stats
	Err     error
	Elapsed time.Duration
}

// Report is the outcome of an inventory run, gateways in request order.
type Report struct {
	Generated time.Time
	Gateways  []GatewayResult
}

// Errors lists failed gateways in the "Gateway <id> FAILED: <cause>" form.
func (r Report) Errors() []string {
	var out []string
	for _, g := range r.Gateways {
		if g.Err != nil {
			out = append(out, fmt.Sprintf("Gateway %s FAILED: %v", g.Gateway, g.Err))
		}
	}
	return out
}

// Records flattens every successful gateway's records.
func (r Report) Records() []portdata.Record {
	var out []portdata.Record
	for _, g := range r.Gateways {
		if g.Dataset != nil {
			out = append(out, g.Dataset.Records()...)
		}
	}
	return out
}

// Runner scrapes gateways with bounded parallelism.
type Runner struct {
	open        Opener
	parallel    int
	options     collect.Options
	collectOpts []collect.Option
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallel bounds how many gateways are scraped at once.
func WithParallel(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// WithCollectOptions sets the dataset builder limits.
func WithCollectOptions(o collect.Options, opts ...collect.Option) Option {
	return func(r *Runner) {
		r.options = o
		r.collectOpts = opts
	}
}

// NewRunner returns a runner that opens consoles with open.
func NewRunner(open Opener, opts ...Option) *Runner {
	r := &Runner{
		open:     open,
		parallel: 2,
		options:  collect.DefaultOptions(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run scrapes ids. A failing gateway is recorded in its result and does not
// stop the others.
func (r *Runner) Run(ctx context.Context, ids []string) Report {
	log := logging.Get(logging.CategoryInventory)
	report := Report{Generated: r.now(), Gateways: make([]GatewayResult, len(ids))}
	log.Info("starting scrape for %d gateways (parallel=%d)", len(ids), r.parallel)

	var mu sync.Mutex
	done := 0

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.parallel)
	for i, id := range ids {
		eg.Go(func() error {
			res := r.gateway(egCtx, id)
			report.Gateways[i] = res

			mu.Lock()
			done++
			log.Info("gateway %s finished (%d/%d)", id, done, len(ids))
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return report
}

func (r *Runner) gateway(ctx context.Context, id string) GatewayResult {
	start := r.now()
	res := GatewayResult{Gateway: id}
	log := logging.Get(logging.CategoryInventory).With("gateway", id)

	console, release, err := r.open(ctx, id)
	if err != nil {
		res.Err = fmt.Errorf("open session: %w", err)
		log.Error("%v", res.Err)
		return res
	}
	defer release()

	res.Dataset, res.Stats, res.Err = Scrape(ctx, console, id, r.options, r.collectOpts...)
	res.Elapsed = r.now().Sub(start)
	if res.Err != nil {
		log.Error("gateway %s failed: %v", id, res.Err)
		return res
	}
	log.Info("gateway %s scrape complete. Active: %d", id, countStatus(res.Dataset, portdata.StatusActive))
	return res
}

// Scrape logs in, builds all three attribute datasets, merges them and
// classifies every port from the Port Status screen.
func Scrape(ctx context.Context, c Console, id string, opts collect.Options, collectOpts ...collect.Option) (*portdata.GatewayDataset, []collect.Stats, error) {
	log := logging.Get(logging.CategoryInventory).With("gateway", id)

	if err := c.Login(ctx); err != nil {
		return nil, nil, fmt.Errorf("login: %w", err)
	}
	if err := c.OpenPortSettings(ctx); err != nil {
		return nil, nil, fmt.Errorf("port settings: %w", err)
	}

	b := collect.NewBuilder(c, id, opts, collectOpts...)
	var sets []*portdata.Dataset
	var stats []collect.Stats
	for _, attr := range portdata.Attributes {
		ds, st, err := b.Build(ctx, attr)
		stats = append(stats, st)
		if err != nil {
			return nil, stats, fmt.Errorf("scrape %s: %w", attr.Label(), err)
		}
		sets = append(sets, ds)
	}
	merged := portdata.Merge(id, classify.Carrier, sets...)

	cells, err := c.PortStatusCells(ctx)
	if err != nil {
		if browser.IsFatal(err) {
			return nil, stats, fmt.Errorf("port status: %w", err)
		}
		log.Warn("could not scrape port status, statuses stay inactive: %v", err)
		return merged, stats, nil
	}
	return Classify(merged, cells), stats, nil
}

// Classify derives each port's status from its Port Status cell.
func Classify(ds *portdata.GatewayDataset, cells map[portdata.Key]string) *portdata.GatewayDataset {
	return ds.WithStatus(func(r portdata.Record) portdata.Status {
		html, ok := cells[r.Port]
		if !ok {
			return r.Status
		}
		return classify.Status(classify.ParseIndicator(html), r.Missing, r.Status)
	})
}

func countStatus(ds *portdata.GatewayDataset, s portdata.Status) int {
	n := 0
	for _, r := range ds.Records() {
		if r.Status == s {
			n++
		}
	}
	return n
}
