package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwprov/internal/browser"
	"gwprov/internal/browser/browsertest"
	"gwprov/internal/contact"
	"gwprov/internal/portdata"
	"gwprov/internal/runlog"
)

const (
	activationEntry = "https://dealer.test/Activate/MobileX/Activation/MOBILEX/00001777"
	refillEntry     = "https://dealer.test/Refill/MobileX"
)

func imeiFor(n int) string  { return fmt.Sprintf("8675300123%05d", n) }
func iccidFor(n int) string { return fmt.Sprintf("8901410321111%07d", n) }
func mdnFor(n int) string   { return fmt.Sprintf("518818%04d", n) }

// dataset builds a merged gateway dataset where only the given ports carry
// IMEI, ICCID and MDN values.
func dataset(ports ...int) *portdata.GatewayDataset {
	imei := portdata.NewDataset(portdata.AttrIMEI)
	iccid := portdata.NewDataset(portdata.AttrICCID)
	mdn := portdata.NewDataset(portdata.AttrMDN)
	for _, n := range ports {
		k := portdata.KeyFor(n)
		imei.Offer(k, imeiFor(n))
		iccid.Offer(k, iccidFor(n))
		mdn.Offer(k, mdnFor(n))
	}
	return portdata.Merge("101", nil, imei, iccid, mdn)
}

func allPorts() []int {
	out := make([]int, portdata.PortCount)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// fast shrinks every wait so failing lookups return in milliseconds.
func fast(wf Workflow) Workflow {
	steps := make(map[State][]Action, len(wf.Steps))
	for s, actions := range wf.Steps {
		cp := make([]Action, len(actions))
		for i, a := range actions {
			a.Wait = 20 * time.Millisecond
			cp[i] = a
		}
		steps[s] = cp
	}
	wf.Steps = steps
	wf.ActionTimeout = time.Second
	wf.SubmitWait = 60 * time.Millisecond
	return wf
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return nil
}

type outcomeRecorder struct {
	outcomes []Outcome
}

func (r *outcomeRecorder) RecordOutcome(_ context.Context, o Outcome) error {
	r.outcomes = append(r.outcomes, o)
	return nil
}

// activationSite is a fake activation form. Submitting shows the receipt
// heading unless the IMEI in the form is listed in rejected.
type activationSite struct {
	page                                *browsertest.Page
	imei, sim, zip, pin, confirm, email *browsertest.Element
	phone, cont, submit                 *browsertest.Element
	receipt                             browser.Locator
	rejected                            map[string]bool
	simAtIMEIFill                       []string
}

func newActivationSite() *activationSite {
	s := &activationSite{
		page:     browsertest.NewPage("about:blank"),
		imei:     browsertest.NewElement(""),
		sim:      browsertest.NewElement(""),
		zip:      browsertest.NewElement(""),
		pin:      browsertest.NewElement(""),
		confirm:  browsertest.NewElement(""),
		email:    browsertest.NewElement(""),
		phone:    browsertest.NewElement(""),
		cont:     browsertest.NewElement("Continue"),
		submit:   browsertest.NewElement("Submit"),
		receipt:  browser.Role("heading", "Activation Receipt"),
		rejected: map[string]bool{},
	}
	s.page.
		Add(browser.Role("textbox", "IMEI"), s.imei).
		Add(browser.Role("textbox", "Enter SIM #"), s.sim).
		Add(browser.Role("textbox", "Account Zip Code"), s.zip).
		Add(browser.Role("textbox", "Account PIN"), s.pin).
		Add(browser.Role("textbox", "Confirm PIN"), s.confirm).
		Add(browser.Role("textbox", "Contact Email"), s.email).
		Add(browser.Role("textbox", "Contact Phone #"), s.phone).
		Add(browser.Role("button", "Continue"), s.cont).
		Add(browser.Role("button", "Submit"), s.submit)
	s.page.SetBody("MobileX Activation\n\nIMEI\nSIM\nAn error occurred\n")

	s.imei.OnFill = func(_ *browsertest.Element, _ string) error {
		s.simAtIMEIFill = append(s.simAtIMEIFill, s.sim.CurrentValue())
		return nil
	}
	s.submit.OnClick = func(*browsertest.Element) error {
		if !s.rejected[s.imei.CurrentValue()] {
			s.page.Add(s.receipt, browsertest.NewElement("Activation Receipt"))
			s.page.SetURL("https://dealer.test/Activate/Receipt/42")
		}
		return nil
	}
	s.page.OnNavigate = func(p *browsertest.Page, url string) {
		p.Remove(s.receipt)
		for _, el := range []*browsertest.Element{s.imei, s.sim, s.zip, s.pin, s.confirm, s.email, s.phone} {
			el.SetValue("")
		}
	}
	return s
}

func activationWorkflow() Workflow {
	return fast(Activation(ActivationParams{
		EntryURL:     activationEntry,
		ZipCode:      "12222",
		PIN:          "335656",
		ContactPhone: "5555555555",
	}))
}

type harness struct {
	engine *Engine
	sleeps *sleepRecorder
	rec    *outcomeRecorder
	log    *bytes.Buffer
}

func newHarness(t *testing.T, page browser.Page, wf Workflow, policy contact.Policy) *harness {
	t.Helper()
	h := &harness{sleeps: &sleepRecorder{}, rec: &outcomeRecorder{}, log: &bytes.Buffer{}}
	e, err := NewEngine(page, wf, policy, runlog.New(h.log),
		WithGateway("101"),
		WithRecorder(h.rec),
		WithSleep(h.sleeps.Sleep),
		WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) lines() []string {
	return strings.Split(strings.TrimSpace(h.log.String()), "\n")
}

func outcomeFor(res Result, port portdata.Key) (Outcome, bool) {
	for _, o := range res.Outcomes {
		if o.Port == port {
			return o, true
		}
	}
	return Outcome{}, false
}

func TestRun_SkipWithoutIdentifierKeepsEmailCounter(t *testing.T) {
	site := newActivationSite()
	policy := contact.Policy{Strategy: contact.StrategyLoop, List: []string{"a@x", "b@x"}}
	h := newHarness(t, site.page, activationWorkflow(), policy)

	// A1 has no identifiers; A2 and A3 are complete.
	res, err := h.engine.Run(context.Background(), dataset(2, 3), 1)
	require.NoError(t, err)

	a1, ok := outcomeFor(res, "A1")
	require.True(t, ok)
	assert.Equal(t, KindSkipped, a1.Kind)
	assert.Equal(t, "IMEI is null or missing", a1.Detail)
	assert.Empty(t, a1.Email)

	a2, _ := outcomeFor(res, "A2")
	a3, _ := outcomeFor(res, "A3")
	assert.Equal(t, KindSuccess, a2.Kind)
	assert.Equal(t, "a@x", a2.Email)
	assert.Equal(t, KindSuccess, a3.Kind)
	assert.Equal(t, "b@x", a3.Email)

	assert.Equal(t, []string{"a@x", "b@x"}, site.email.Fills())
	assert.Equal(t, []string{imeiFor(2), imeiFor(3)}, site.imei.Fills())
	assert.Equal(t, 2, res.Attempted)
	assert.Len(t, res.Outcomes, portdata.PortCount)
	assert.Equal(t, Summary{Success: 2, Skipped: 62}, res.Summary())
	assert.Len(t, h.rec.outcomes, portdata.PortCount)
}

func TestRun_SubmitFailureIsolatesNextPort(t *testing.T) {
	site := newActivationSite()
	site.rejected[imeiFor(5)] = true
	wf := activationWorkflow()
	h := newHarness(t, site.page, wf, contact.Policy{Strategy: contact.StrategySingle, Single: "ops@x"})

	res, err := h.engine.Run(context.Background(), dataset(5, 6), 5)
	require.NoError(t, err)

	a5, ok := outcomeFor(res, "A5")
	require.True(t, ok)
	assert.Equal(t, KindFailed, a5.Kind)
	assert.Equal(t, "Submit", a5.Stage)
	assert.Contains(t, a5.Detail, "Activation Receipt")

	a6, ok := outcomeFor(res, "A6")
	require.True(t, ok)
	assert.Equal(t, KindSuccess, a6.Kind, a6.String())
	assert.Equal(t, "https://dealer.test/Activate/Receipt/42", a6.URL)

	// initial entry, reset after A5, reset after A6
	assert.Equal(t, []string{activationEntry, activationEntry, activationEntry}, site.page.Navigations)
	assert.Equal(t, []time.Duration{wf.Settle, wf.Settle, wf.Settle}, h.sleeps.calls)
	// A6 started from an empty form
	assert.Equal(t, []string{"", ""}, site.simAtIMEIFill)

	log := h.log.String()
	failAt := strings.Index(log, "A5 ERROR stage=Submit")
	pageText := strings.Index(log, "A5 ERROR_PAGE_TEXT MobileX Activation | IMEI | SIM | An error occurred")
	resetAt := strings.Index(log, "A5 RESET")
	startA6 := strings.Index(log, "A6 START IMEI:"+imeiFor(6))
	require.True(t, failAt >= 0 && pageText >= 0 && resetAt >= 0 && startA6 >= 0, log)
	assert.Less(t, failAt, pageText)
	assert.Less(t, pageText, resetAt)
	assert.Less(t, resetAt, startA6)
}

func TestRun_FillFailureSkipsRemainingSteps(t *testing.T) {
	site := newActivationSite()
	site.sim.OnFill = func(_ *browsertest.Element, _ string) error {
		if site.imei.CurrentValue() == imeiFor(2) {
			return errors.New("element is not editable")
		}
		return nil
	}
	h := newHarness(t, site.page, activationWorkflow(), contact.Policy{Strategy: contact.StrategyLoop, List: []string{"a@x", "b@x", "c@x"}})

	res, err := h.engine.Run(context.Background(), dataset(1, 2, 3), 1)
	require.NoError(t, err)

	a2, _ := outcomeFor(res, "A2")
	assert.Equal(t, KindFailed, a2.Kind)
	assert.Equal(t, "FillIdentifierB", a2.Stage)
	assert.Contains(t, a2.Detail, "not editable")

	// A2 never reached the details form or submit, but still used an email slot
	assert.Equal(t, []string{"a@x", "c@x"}, site.email.Fills())
	assert.Equal(t, 2, site.submit.Clicks())
	a3, _ := outcomeFor(res, "A3")
	assert.Equal(t, KindSuccess, a3.Kind)
	assert.Equal(t, 3, res.Attempted)
}

func TestRun_MissingFieldFailsWithStage(t *testing.T) {
	site := newActivationSite()
	site.zip.SetHidden(true)
	h := newHarness(t, site.page, activationWorkflow(), contact.Policy{})

	res, err := h.engine.Run(context.Background(), dataset(64), 64)
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 1)
	o := res.Outcomes[0]
	assert.Equal(t, KindFailed, o.Kind)
	assert.Equal(t, "FillAccountDetails", o.Stage)
	assert.Contains(t, o.Detail, `Account Zip Code`)
	assert.Zero(t, site.submit.Clicks())
}

func TestRun_SessionClosedAborts(t *testing.T) {
	site := newActivationSite()
	site.imei.OnFill = func(_ *browsertest.Element, text string) error {
		if text == imeiFor(10) {
			site.page.Close()
			return browser.ErrSessionClosed
		}
		return nil
	}
	h := newHarness(t, site.page, activationWorkflow(), contact.Policy{})

	res, err := h.engine.Run(context.Background(), dataset(allPorts()...), 1)
	require.ErrorIs(t, err, browser.ErrSessionClosed)

	assert.True(t, res.Aborted)
	assert.Equal(t, portdata.Key("A10"), res.AbortedAt)
	require.Len(t, res.Outcomes, 9)
	for _, o := range res.Outcomes {
		assert.Less(t, o.Port.Index(), 10, "no outcome expected for %s", o.Port)
		assert.Equal(t, KindSuccess, o.Kind)
	}
	assert.Len(t, h.rec.outcomes, 9)

	lines := h.lines()
	assert.Contains(t, lines[len(lines)-2], "A10 FATAL")
	assert.Contains(t, lines[len(lines)-1], "RUN SUMMARY success=9 failed=0 skipped=0 aborted=true")
	assert.NotContains(t, h.log.String(), "A10 ERROR")
	assert.NotContains(t, h.log.String(), "A11 ")
}

// closingPage closes the session on the first navigation for which closeWhen
// reports true, as if the browser died while leaving the page.
type closingPage struct {
	*browsertest.Page
	closeWhen func() bool
}

func (p *closingPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if p.closeWhen() {
		p.Page.Close()
		return browser.ErrSessionClosed
	}
	return p.Page.Navigate(ctx, url, timeout)
}

func TestRun_SessionClosedDuringResetKeepsOutcome(t *testing.T) {
	site := newActivationSite()
	page := &closingPage{Page: site.page, closeWhen: func() bool {
		return site.imei.CurrentValue() == imeiFor(10)
	}}
	h := newHarness(t, page, activationWorkflow(), contact.Policy{})

	res, err := h.engine.Run(context.Background(), dataset(allPorts()...), 1)
	require.ErrorIs(t, err, browser.ErrSessionClosed)

	assert.True(t, res.Aborted)
	assert.Equal(t, portdata.Key("A10"), res.AbortedAt)
	require.Len(t, res.Outcomes, 10)
	o, ok := outcomeFor(res, "A10")
	require.True(t, ok, "outcome decided before the reset is kept")
	assert.Equal(t, KindSuccess, o.Kind)
	_, ok = outcomeFor(res, "A11")
	assert.False(t, ok)
	assert.Len(t, h.rec.outcomes, 10)

	lines := h.lines()
	assert.Contains(t, lines[len(lines)-2], "A10 FATAL")
	assert.Contains(t, lines[len(lines)-1], "RUN SUMMARY success=10 failed=0 skipped=0 aborted=true")
	assert.Contains(t, h.log.String(), "A10 SUCCESS")
	assert.NotContains(t, h.log.String(), "A11 ")
}

func TestRun_CancelledContextAborts(t *testing.T) {
	site := newActivationSite()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site.submit.OnClick = func(*browsertest.Element) error {
		if site.imei.CurrentValue() == imeiFor(3) {
			cancel()
		}
		return nil
	}
	// receipt is always on the page so ports before A3 succeed
	site.page.OnNavigate = nil
	site.page.Add(browser.Role("heading", "Activation Receipt"), browsertest.NewElement("Activation Receipt"))

	h := newHarness(t, site.page, activationWorkflow(), contact.Policy{})
	res, err := h.engine.Run(ctx, dataset(1, 2, 3, 4), 1)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, portdata.Key("A3"), res.AbortedAt)
	assert.Len(t, res.Outcomes, 2)
	_, ok := outcomeFor(res, "A3")
	assert.False(t, ok)
}

// refillSite fakes the refill pages: unknown numbers hide the plan link and
// declined numbers land on the error URL.
type refillSite struct {
	page                          *browsertest.Page
	phone, lookup, plan, purchase *browsertest.Element
	unknown, declined             map[string]bool
}

func newRefillSite() *refillSite {
	s := &refillSite{
		page:     browsertest.NewPage("about:blank"),
		phone:    browsertest.NewElement(""),
		lookup:   browsertest.NewElement("Lookup Phone Number"),
		plan:     &browsertest.Element{Text: "$20 / mo", Hidden: true},
		purchase: browsertest.NewElement("Purchase Refill"),
		unknown:  map[string]bool{},
		declined: map[string]bool{},
	}
	s.page.
		Add(browser.Role("textbox", "Phone Number"), s.phone).
		Add(browser.Role("button", "Lookup Phone Number"), s.lookup).
		Add(browser.Role("link", "$20 / mo"), s.plan).
		Add(browser.Role("button", "Purchase Refill"), s.purchase)

	s.lookup.OnClick = func(*browsertest.Element) error {
		s.plan.SetHidden(s.unknown[s.phone.CurrentValue()])
		return nil
	}
	s.purchase.OnClick = func(*browsertest.Element) error {
		if s.declined[s.phone.CurrentValue()] {
			s.page.SetURL("https://dealer.test/Refill/MobileX/Error")
		} else {
			s.page.SetURL("https://dealer.test/Refill/Receipt/77")
		}
		return nil
	}
	s.page.OnNavigate = func(*browsertest.Page, string) {
		s.plan.SetHidden(true)
		s.phone.SetValue("")
	}
	return s
}

func TestRun_Refill(t *testing.T) {
	site := newRefillSite()
	site.unknown[mdnFor(2)] = true
	site.declined[mdnFor(3)] = true
	wf := fast(Refill(RefillParams{EntryURL: refillEntry}))
	h := newHarness(t, site.page, wf, contact.Policy{})

	res, err := h.engine.Run(context.Background(), dataset(1, 2, 3), 1)
	require.NoError(t, err)

	a1, _ := outcomeFor(res, "A1")
	assert.Equal(t, KindSuccess, a1.Kind)
	assert.Equal(t, "https://dealer.test/Refill/Receipt/77", a1.URL)

	a2, _ := outcomeFor(res, "A2")
	assert.Equal(t, KindFailed, a2.Kind)
	assert.Equal(t, "Continue2", a2.Stage)

	a3, _ := outcomeFor(res, "A3")
	assert.Equal(t, KindFailed, a3.Kind)
	assert.Equal(t, "Submit", a3.Stage)
	assert.Contains(t, a3.Detail, "/Refill/MobileX/Error")

	assert.Equal(t, []string{mdnFor(1), mdnFor(2), mdnFor(3)}, site.phone.Fills())
	assert.Equal(t, 2, site.purchase.Clicks())
	assert.Contains(t, h.log.String(), "A1 START MDN:"+mdnFor(1))

	a4, _ := outcomeFor(res, "A4")
	assert.Equal(t, "MDN is null or missing", a4.Detail)
}

func TestRun_ClampsStartPort(t *testing.T) {
	site := newActivationSite()
	h := newHarness(t, site.page, activationWorkflow(), contact.Policy{})

	res, err := h.engine.Run(context.Background(), dataset(), 99)
	require.NoError(t, err)
	assert.Equal(t, portdata.Key("A64"), res.Start)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, portdata.Key("A64"), res.Outcomes[0].Port)
}

func TestStep_Transitions(t *testing.T) {
	site := newActivationSite()
	h := newHarness(t, site.page, activationWorkflow(), contact.Policy{})
	ds := dataset(7)
	c := &cycle{port: "A7", record: ds.Record("A7")}

	var visited []State
	for s := StateInit; !s.Terminal(); s = h.engine.step(context.Background(), s, c) {
		visited = append(visited, s)
	}
	assert.Equal(t, []State{
		StateInit, StateFillIdentifierA, StateContinue1, StateFillIdentifierB, StateContinue2,
		StateFillAccountDetails, StateSubmit, StateSuccess, StateReset,
	}, visited)
	assert.True(t, c.attempted)
	assert.Equal(t, contact.DefaultEmail, c.email)
}

func TestNewEngine_RejectsInvalidWorkflow(t *testing.T) {
	wf := Activation(ActivationParams{})
	_, err := NewEngine(browsertest.NewPage(""), wf, contact.Policy{}, runlog.New(&bytes.Buffer{}))
	assert.ErrorContains(t, err, "entry URL")

	wf = Refill(RefillParams{EntryURL: refillEntry})
	wf.Steps[StateReset] = []Action{Click(browser.CSS("a"), 0)}
	_, err = NewEngine(browsertest.NewPage(""), wf, contact.Policy{}, runlog.New(&bytes.Buffer{}))
	assert.ErrorContains(t, err, "non-form state Reset")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "FillAccountDetails", StateFillAccountDetails.String())
	assert.Equal(t, "Unknown", State(99).String())
	assert.Equal(t, StateContinue1, after(StateFillIdentifierA))
	assert.Equal(t, StateSubmit, after(StateFillAccountDetails))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", Outcome{Kind: KindSuccess}.String())
	assert.Equal(t, "skipped(IMEI is null or missing)", Outcome{Kind: KindSkipped, Detail: "IMEI is null or missing"}.String())
	assert.Equal(t, "failed(Submit, timeout)", Outcome{Kind: KindFailed, Stage: "Submit", Detail: "timeout"}.String())
}
