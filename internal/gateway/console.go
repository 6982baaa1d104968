// Package gateway drives a gateway's frame-based management console: login,
// navigation to Port Settings, AT command submission, response reading and the
// Port Status screen.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gwprov/internal/browser"
	"gwprov/internal/logging"
	"gwprov/internal/portdata"
)

// Frame names of the console's frameset.
const (
	frameLeft  = "left"
	frameRight = "right"
)

var (
	accountField  = browser.CSS("#accountID")
	passwordMask  = browser.CSS("#passwordID2")
	passwordField = browser.CSS("#passwordID")
	submitLogin   = browser.Text("Submit")

	settingsMenu     = browser.Text("Gateway settings")
	settingsToggle   = browser.CSS("#ID_Settings_Plus_Minus")
	portSettingsLink = browser.Role("link", "Port Settings")
	portStatusLink   = browser.Role("link", "Port Status")

	commandField = browser.CSS("#ID_goip_at_cmd")
	allPorts     = browser.Role("checkbox", "All")
	okCells      = browser.CSS("td").WithText("OK")
	okRows       = browser.CSS("tr").WithText("OK")
	statusTable  = browser.CSS("table")
	tableRows    = browser.CSS("tr")
	firstCell    = browser.CSS("td")
)

// sendButton is the Send button in the cell that also holds the command input.
func sendButton(cmd portdata.Command) browser.Locator {
	return browser.Role("button", "").In(browser.Role("cell", string(cmd)+" Send"))
}

// Credentials identify one gateway console.
type Credentials struct {
	ID       string
	URL      string
	User     string
	Password string
}

// Timeouts bound every wait on the console.
type Timeouts struct {
	Login         time.Duration // initial page load; remote consoles are slow
	Frames        time.Duration // frameset after login
	Action        time.Duration // single click/fill target
	PortSettings  time.Duration // command input after opening Port Settings
	MenuSettle    time.Duration // after expanding the settings menu
	CommandSettle time.Duration // after clicking Send
	SaveSettle    time.Duration // after saving a settings form
	StatusSettle  time.Duration // after opening Port Status
	StatusTable   time.Duration // status table visible
}

// DefaultTimeouts returns the console timings used in production.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Login:         120 * time.Second,
		Frames:        30 * time.Second,
		Action:        10 * time.Second,
		PortSettings:  60 * time.Second,
		MenuSettle:    2 * time.Second,
		CommandSettle: 3 * time.Second,
		SaveSettle:    2 * time.Second,
		StatusSettle:  10 * time.Second,
		StatusTable:   60 * time.Second,
	}
}

// Console is one logged-in gateway console session. It is not safe for
// concurrent use; each gateway gets its own page.
type Console struct {
	page     browser.Page
	creds    Credentials
	timeouts Timeouts
	sleep    func(ctx context.Context, d time.Duration) error
	log      *logging.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithTimeouts overrides the default timings.
func WithTimeouts(t Timeouts) Option {
	return func(c *Console) { c.timeouts = t }
}

// WithSleep replaces the settle delay implementation.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Console) { c.sleep = sleep }
}

// New returns a console bound to page. Call Login before anything else.
func New(page browser.Page, creds Credentials, opts ...Option) *Console {
	c := &Console{
		page:     page,
		creds:    creds,
		timeouts: DefaultTimeouts(),
		sleep:    Sleep,
		log:      logging.Get(logging.CategoryGateway).With("gateway", creds.ID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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

// ID returns the gateway identifier.
func (c *Console) ID() string { return c.creds.ID }

// Closed reports whether the underlying page is gone.
func (c *Console) Closed() bool { return c.page.Closed() }

// Login opens the console and submits the credentials, then waits for the frameset.
func (c *Console) Login(ctx context.Context) error {
	if c.creds.URL == "" || c.creds.Password == "" {
		return fmt.Errorf("gateway %s: url and password are required", c.creds.ID)
	}
	c.log.Info("logging in to %s", c.creds.URL)
	if err := c.page.Navigate(ctx, c.creds.URL, c.timeouts.Login); err != nil {
		return fmt.Errorf("open console: %w", err)
	}

	user := c.creds.User
	if user == "" {
		user = "root"
	}
	if err := c.fill(ctx, c.page, accountField, user); err != nil {
		return fmt.Errorf("login account: %w", err)
	}
	if err := c.click(ctx, c.page, passwordMask); err != nil {
		return fmt.Errorf("login password mask: %w", err)
	}
	if err := c.fill(ctx, c.page, passwordField, c.creds.Password); err != nil {
		return fmt.Errorf("login password: %w", err)
	}
	if err := c.click(ctx, c.page, submitLogin); err != nil {
		return fmt.Errorf("login submit: %w", err)
	}

	if _, err := c.waitFrame(ctx, frameLeft, c.timeouts.Frames); err != nil {
		return fmt.Errorf("console frames: %w", err)
	}
	c.log.Info("login submitted")
	return nil
}

// OpenPortSettings navigates the left menu to Port Settings and waits for the
// AT command input in the right frame.
func (c *Console) OpenPortSettings(ctx context.Context) error {
	if err := c.openSettingsMenu(ctx); err != nil {
		return err
	}
	left, err := c.frame(ctx, frameLeft)
	if err != nil {
		return err
	}
	if err := c.click(ctx, left, portSettingsLink); err != nil {
		return fmt.Errorf("port settings link: %w", err)
	}

	deadline := time.Now().Add(c.timeouts.PortSettings)
	for {
		right, err := c.frame(ctx, frameRight)
		if err == nil {
			if _, err = browser.WaitFor(ctx, right, commandField, time.Until(deadline)); err == nil {
				c.log.Info("port settings ready")
				return nil
			}
		}
		if browser.IsFatal(err) || time.Now().After(deadline) {
			return fmt.Errorf("port settings did not load: %w", err)
		}
		if err := c.sleep(ctx, 500*time.Millisecond); err != nil {
			return err
		}
	}
}

// openSettingsMenu expands "Gateway settings", falling back to the menu toggle.
func (c *Console) openSettingsMenu(ctx context.Context) error {
	left, err := c.frame(ctx, frameLeft)
	if err != nil {
		return err
	}
	if err := c.click(ctx, left, settingsMenu); err != nil {
		if browser.IsFatal(err) {
			return err
		}
		c.log.Warn("could not click Gateway settings text, trying menu toggle: %v", err)
		if err := c.click(ctx, left, settingsToggle); err != nil {
			return fmt.Errorf("settings menu: %w", err)
		}
	}
	return c.sleep(ctx, c.timeouts.MenuSettle)
}

// SendCommand submits cmd for all ports and waits for the settle interval.
func (c *Console) SendCommand(ctx context.Context, cmd portdata.Command) error {
	c.log.Info("sending AT command %s", cmd)
	right, err := c.frame(ctx, frameRight)
	if err != nil {
		return err
	}
	if err := c.fill(ctx, right, commandField, string(cmd)); err != nil {
		return fmt.Errorf("command input: %w", err)
	}
	all, err := browser.WaitFor(ctx, right, allPorts, c.timeouts.Action)
	if err != nil {
		return fmt.Errorf("all-ports checkbox: %w", err)
	}
	if err := all.Check(ctx); err != nil {
		return fmt.Errorf("all-ports checkbox: %w", err)
	}
	if err := c.click(ctx, right, sendButton(cmd)); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return c.sleep(ctx, c.timeouts.CommandSettle)
}

// CountOK counts response cells containing an OK marker.
func (c *Console) CountOK(ctx context.Context) (int, error) {
	right, err := c.frame(ctx, frameRight)
	if err != nil {
		return 0, err
	}
	cells, err := right.LocateAll(ctx, okCells)
	if err != nil {
		return 0, err
	}
	return len(cells), nil
}

// ResponseRows returns the visible text of every row carrying an OK marker.
// Unreadable rows come back empty.
func (c *Console) ResponseRows(ctx context.Context) ([]string, error) {
	right, err := c.frame(ctx, frameRight)
	if err != nil {
		return nil, err
	}
	rows, err := right.LocateAll(ctx, okRows)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for i, row := range rows {
		txt, err := row.InnerText(ctx)
		if err != nil {
			if browser.IsFatal(err) {
				return nil, err
			}
			c.log.Debug("row %d unreadable: %v", i, err)
		}
		out = append(out, txt)
	}
	return out, nil
}

// frame re-acquires a named frame; the console reloads frames on navigation
// so handles are never cached.
func (c *Console) frame(ctx context.Context, name string) (browser.Page, error) {
	if c.page.Closed() {
		return nil, browser.ErrSessionClosed
	}
	f, err := c.page.Frame(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%s frame: %w", name, err)
	}
	return f, nil
}

func (c *Console) waitFrame(ctx context.Context, name string, timeout time.Duration) (browser.Page, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := c.frame(ctx, name)
		if err == nil {
			return f, nil
		}
		if browser.IsFatal(err) || !errors.Is(err, browser.ErrNotFound) || time.Now().After(deadline) {
			return nil, err
		}
		if err := c.sleep(ctx, 500*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

func (c *Console) click(ctx context.Context, p browser.Page, loc browser.Locator) error {
	el, err := browser.WaitFor(ctx, p, loc, c.timeouts.Action)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (c *Console) fill(ctx context.Context, p browser.Page, loc browser.Locator, text string) error {
	el, err := browser.WaitFor(ctx, p, loc, c.timeouts.Action)
	if err != nil {
		return err
	}
	return el.Fill(ctx, text)
}
