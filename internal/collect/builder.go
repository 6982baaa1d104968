// Package collect builds per-attribute port datasets from a gateway console by
// issuing an AT command for all ports, polling for completion and extracting
// response rows over a bounded number of passes.
package collect

import (
	"context"
	"fmt"
	"time"

	"gwprov/internal/browser"
	"gwprov/internal/logging"
	"gwprov/internal/portdata"
)

// Console is the part of a gateway session the builder needs. It must already
// be on the port query screen.
type Console interface {
	SendCommand(ctx context.Context, cmd portdata.Command) error
	CountOK(ctx context.Context) (int, error)
	ResponseRows(ctx context.Context) ([]string, error)
	Closed() bool
}

// Observer is notified after every pass. It must not block.
type Observer interface {
	PassCompleted(gateway string, attr portdata.Attribute, pass, resolved int)
}

// Options bound the builder's waits and retries.
type Options struct {
	Expected          int           // OK markers for a full response
	Tolerance         int           // markers that may be missing and still count as complete
	PollInterval      time.Duration // between OK counts
	CompletionTimeout time.Duration // per pass
	Retries           int           // re-issues after the first pass
}

// DefaultOptions returns the production settings: 64 ports, 63 accepted,
// 2s polling for up to 90s, three retries.
func DefaultOptions() Options {
	return Options{
		Expected:          portdata.PortCount,
		Tolerance:         1,
		PollInterval:      2 * time.Second,
		CompletionTimeout: 90 * time.Second,
		Retries:           3,
	}
}

// Stats summarizes one Build.
type Stats struct {
	Attribute  portdata.Attribute
	Passes     int
	OKCounts   []int // final OK count observed per pass
	Resolved   int
	Unresolved []portdata.Key
	Elapsed    time.Duration
}

// Builder produces datasets from one console. It is sequential; use one
// builder per gateway.
type Builder struct {
	console  Console
	gateway  string
	opts     Options
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	log      *logging.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithObserver registers a pass observer.
func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// WithSleep replaces the poll delay implementation.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Builder) { b.sleep = sleep }
}

// WithClock replaces time.Now, mainly so tests can drive poll timeouts.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder returns a builder for gateway reading through console.
func NewBuilder(console Console, gateway string, opts Options, options ...Option) *Builder {
	b := &Builder{
		console: console,
		gateway: gateway,
		opts:    opts,
		sleep:   sleep,
		now:     time.Now,
		log:     logging.Get(logging.CategoryCollect).With("gateway", gateway),
	}
	for _, o := range options {
		o(b)
	}
	return b
}

// Build queries attr for all ports and returns the dataset. Unresolved ports
// stay null and are reported only as a count. The only errors are a closed
// session and a cancelled context.
func (b *Builder) Build(ctx context.Context, attr portdata.Attribute) (*portdata.Dataset, Stats, error) {
	start := b.now()
	ds := portdata.NewDataset(attr)
	stats := Stats{Attribute: attr}
	cmd := attr.Command()

	for pass := 1; pass <= 1+b.opts.Retries; pass++ {
		if err := b.fatal(ctx); err != nil {
			return ds, b.finish(stats, ds, start), err
		}
		if pass > 1 {
			b.log.Info("%s: captured %d/%d, retry %d: re-sending command", attr.Label(), ds.Resolved(), portdata.PortCount, pass-1)
		}

		ok, added, err := b.pass(ctx, ds, cmd)
		stats.Passes = pass
		stats.OKCounts = append(stats.OKCounts, ok)
		if err != nil {
			return ds, b.finish(stats, ds, start), err
		}
		b.log.Debug("%s pass %d: %d OK markers, %d new values", attr.Label(), pass, ok, added)
		if b.observer != nil {
			b.observer.PassCompleted(b.gateway, attr, pass, ds.Resolved())
		}
		if ds.Complete() {
			break
		}
	}

	stats = b.finish(stats, ds, start)
	if n := len(stats.Unresolved); n > 0 {
		b.log.Warn("%s: only %d/%d ports captured after %d passes; %d remain null",
			attr.Label(), stats.Resolved, portdata.PortCount, stats.Passes, n)
	} else {
		b.log.Info("%s: all %d ports captured in %d passes", attr.Label(), portdata.PortCount, stats.Passes)
	}
	return ds, stats, nil
}

// pass sends cmd, waits for completion and merges rows into ds. Non-fatal
// console failures count as zero progress.
func (b *Builder) pass(ctx context.Context, ds *portdata.Dataset, cmd portdata.Command) (okCount, added int, err error) {
	if err := b.console.SendCommand(ctx, cmd); err != nil {
		if browser.IsFatal(err) || b.console.Closed() {
			return 0, 0, b.fatalErr(ctx, err)
		}
		b.log.Warn("send %s failed, treating pass as zero progress: %v", cmd, err)
		return 0, 0, nil
	}

	okCount, err = b.awaitCompletion(ctx)
	if err != nil {
		return okCount, 0, err
	}

	rows, err := b.console.ResponseRows(ctx)
	if err != nil {
		if browser.IsFatal(err) || b.console.Closed() {
			return okCount, 0, b.fatalErr(ctx, err)
		}
		b.log.Warn("could not read %s responses, treating pass as zero progress: %v", cmd, err)
		return okCount, 0, nil
	}
	for _, row := range rows {
		key, value, ok := portdata.Extract(row, cmd)
		if !ok {
			continue
		}
		if ds.Offer(key, value) {
			added++
		}
	}
	return okCount, added, nil
}

// awaitCompletion polls the OK count until the expected count (less the
// tolerance) is reached or the completion timeout elapses.
func (b *Builder) awaitCompletion(ctx context.Context) (int, error) {
	want := b.opts.Expected - b.opts.Tolerance
	deadline := b.now().Add(b.opts.CompletionTimeout)
	last := 0
	for {
		n, err := b.console.CountOK(ctx)
		switch {
		case err == nil:
			last = n
			if n >= want {
				return n, nil
			}
		case browser.IsFatal(err) || b.console.Closed():
			return last, b.fatalErr(ctx, err)
		default:
			b.log.Debug("error checking OK count: %v", err)
		}
		if !b.now().Before(deadline) {
			b.log.Warn("only %d OK responses after %s, proceeding anyway", last, b.opts.CompletionTimeout)
			return last, nil
		}
		if err := b.sleep(ctx, b.opts.PollInterval); err != nil {
			return last, err
		}
	}
}

func (b *Builder) fatal(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.console.Closed() {
		return browser.ErrSessionClosed
	}
	return nil
}

func (b *Builder) fatalErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if b.console.Closed() {
		return fmt.Errorf("%v: %w", err, browser.ErrSessionClosed)
	}
	return err
}

func (b *Builder) finish(stats Stats, ds *portdata.Dataset, start time.Time) Stats {
	stats.Resolved = ds.Resolved()
	stats.Unresolved = ds.Unresolved()
	stats.Elapsed = b.now().Sub(start)
	return stats
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
