package collect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwprov/internal/browser"
	"gwprov/internal/portdata"
)

// fakeConsole replays one scripted response per pass.
type fakeConsole struct {
	mu      sync.Mutex
	passes  []passScript
	current int // index of the pass in flight
	sends   []portdata.Command
	closed  bool

	closeOnSend int // close the session on this send (1-based), 0 never
}

type passScript struct {
	sendErr error
	rowsErr error
	ok      []int // successive CountOK results; last value repeats
	rows    []string
}

func (f *fakeConsole) SendCommand(_ context.Context, cmd portdata.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, cmd)
	if f.closeOnSend == len(f.sends) {
		f.closed = true
		return browser.ErrSessionClosed
	}
	f.current = len(f.sends) - 1
	return f.script().sendErr
}

func (f *fakeConsole) script() passScript {
	if f.current < len(f.passes) {
		return f.passes[f.current]
	}
	return passScript{}
}

func (f *fakeConsole) CountOK(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.script()
	if len(s.ok) == 0 {
		return 0, nil
	}
	n := s.ok[0]
	if len(s.ok) > 1 {
		f.passes[f.current].ok = s.ok[1:]
	}
	return n, nil
}

func (f *fakeConsole) ResponseRows(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.script()
	return s.rows, s.rowsErr
}

func (f *fakeConsole) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeClock advances only when the builder sleeps.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

type passRecord struct {
	pass, resolved int
}

type recordingObserver struct {
	passes []passRecord
}

func (o *recordingObserver) PassCompleted(_ string, _ portdata.Attribute, pass, resolved int) {
	o.passes = append(o.passes, passRecord{pass, resolved})
}

func imeiRows(from, to int, prefix string) []string {
	var rows []string
	for i := from; i <= to; i++ {
		rows = append(rows, fmt.Sprintf("A%d OK %s%05d", i, prefix, i))
	}
	return rows
}

func testOptions() Options {
	o := DefaultOptions()
	o.CompletionTimeout = 10 * time.Second
	return o
}

func newTestBuilder(c Console, opts ...Option) (*Builder, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	all := append([]Option{WithSleep(clock.Sleep), WithClock(clock.Now)}, opts...)
	return NewBuilder(c, "101", testOptions(), all...), clock
}

func TestBuild_CompleteFirstPass(t *testing.T) {
	c := &fakeConsole{passes: []passScript{
		{ok: []int{10, 40, 64}, rows: imeiRows(1, 64, "8675300123")},
	}}
	obs := &recordingObserver{}
	b, clock := newTestBuilder(c, WithObserver(obs))

	ds, stats, err := b.Build(context.Background(), portdata.AttrIMEI)
	require.NoError(t, err)

	assert.True(t, ds.Complete())
	assert.Equal(t, 1, stats.Passes)
	assert.Equal(t, []int{64}, stats.OKCounts)
	assert.Empty(t, stats.Unresolved)
	assert.Equal(t, []portdata.Command{portdata.CommandIMEI}, c.sends)
	assert.Equal(t, 2, clock.sleeps)
	assert.Equal(t, []passRecord{{1, 64}}, obs.passes)

	v, ok := ds.Get("A64")
	require.True(t, ok)
	assert.Equal(t, "867530012300064", v)
}

func TestBuild_AcceptsToleranceAndRetriesMissing(t *testing.T) {
	// 63 OK markers is enough to proceed, but A64 is absent so one retry runs.
	c := &fakeConsole{passes: []passScript{
		{ok: []int{63}, rows: imeiRows(1, 63, "8675300123")},
		{ok: []int{64}, rows: imeiRows(1, 64, "9999999999")},
	}}
	b, _ := newTestBuilder(c)

	ds, stats, err := b.Build(context.Background(), portdata.AttrIMEI)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Passes)
	assert.True(t, ds.Complete())

	// first writer wins: the retry only fills A64
	v, _ := ds.Get("A1")
	assert.Equal(t, "867530012300001", v)
	v, _ = ds.Get("A64")
	assert.Equal(t, "999999999900064", v)
}

func TestBuild_StopsAfterRetryBudget(t *testing.T) {
	c := &fakeConsole{passes: []passScript{
		{ok: []int{20}, rows: imeiRows(1, 10, "8675300123")},
		{ok: []int{20}, rows: imeiRows(11, 20, "8675300123")},
		{ok: []int{20}},
		{ok: []int{20}, rows: imeiRows(21, 30, "8675300123")},
		{ok: []int{64}, rows: imeiRows(1, 64, "8675300123")},
	}}
	b, _ := newTestBuilder(c)

	ds, stats, err := b.Build(context.Background(), portdata.AttrIMEI)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Passes)
	assert.Len(t, c.sends, 4)
	assert.Equal(t, 30, ds.Resolved())
	assert.Len(t, stats.Unresolved, 34)
	assert.Equal(t, portdata.Key("A31"), stats.Unresolved[0])
}

func TestBuild_TimeoutProceedsWithPartialRows(t *testing.T) {
	c := &fakeConsole{passes: []passScript{
		{ok: []int{5}, rows: imeiRows(1, 5, "8675300123")},
	}}
	opts := testOptions()
	opts.Retries = 0
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewBuilder(c, "101", opts, WithSleep(clock.Sleep), WithClock(clock.Now))

	ds, stats, err := b.Build(context.Background(), portdata.AttrIMEI)
	require.NoError(t, err)

	assert.Equal(t, 5, ds.Resolved())
	assert.Equal(t, []int{5}, stats.OKCounts)
	// 10s timeout at a 2s interval
	assert.Equal(t, 5, clock.sleeps)
}

func TestBuild_ConsoleFailureIsZeroProgress(t *testing.T) {
	c := &fakeConsole{passes: []passScript{
		{sendErr: fmt.Errorf("frame right: %w", browser.ErrNotFound)},
		{ok: []int{64}, rowsErr: errors.New("detached frame")},
		{ok: []int{64}, rows: imeiRows(1, 64, "8675300123")},
	}}
	b, _ := newTestBuilder(c)

	ds, stats, err := b.Build(context.Background(), portdata.AttrIMEI)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Passes)
	assert.True(t, ds.Complete())
	assert.Equal(t, []int{0, 64, 64}, stats.OKCounts)
}

func TestBuild_ClosedSessionIsFatal(t *testing.T) {
	c := &fakeConsole{
		passes: []passScript{
			{ok: []int{30}, rows: imeiRows(1, 30, "8675300123")},
		},
		closeOnSend: 2,
	}
	b, _ := newTestBuilder(c)

	ds, stats, err := b.Build(context.Background(), portdata.AttrIMEI)
	require.ErrorIs(t, err, browser.ErrSessionClosed)

	// rows captured before the session died are kept
	assert.Equal(t, 30, ds.Resolved())
	assert.Equal(t, 2, stats.Passes)
}

func TestBuild_CancelledContext(t *testing.T) {
	c := &fakeConsole{passes: []passScript{{ok: []int{0}}}}
	b, _ := newTestBuilder(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := b.Build(ctx, portdata.AttrIMEI)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.sends)
}

func TestBuild_MDNRowsAreNormalized(t *testing.T) {
	c := &fakeConsole{passes: []passScript{{
		ok: []int{64},
		rows: []string{
			`A1 +CNUM: "","+15188184240",145 OK`,
			`A2 +CNUM: "","5188184241",129 OK`,
			`A3 +CNUM: "","123456",129 OK`,
		},
	}}}
	opts := testOptions()
	opts.Retries = 0
	clock := &fakeClock{}
	b := NewBuilder(c, "101", opts, WithSleep(clock.Sleep), WithClock(clock.Now))

	ds, _, err := b.Build(context.Background(), portdata.AttrMDN)
	require.NoError(t, err)

	v, _ := ds.Get("A1")
	assert.Equal(t, "5188184240", v)
	v, _ = ds.Get("A2")
	assert.Equal(t, "5188184241", v)
	_, ok := ds.Get("A3")
	assert.False(t, ok)
	assert.Equal(t, []portdata.Command{portdata.CommandMDN}, c.sends)
}
