package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gwprov/internal/browser"
	"gwprov/internal/logging"
)

// Login is the dealer portal sign-in shared by all workflows.
type Login struct {
	URL        string
	DealerCode string
	User       string
	Password   string

	LoadTimeout time.Duration // login page load
	WaitTimeout time.Duration // each completion check
	// Ready, when set, is a fallback completion marker checked if the URL
	// never leaves the log-on page.
	Ready  *browser.Locator
	Settle time.Duration
}

var (
	dealerCodeField = browser.CSS("#DealerCode")
	userNameField   = browser.CSS("#UserName")
	loginPassword   = browser.CSS("#Password")
	loginButton     = browser.Role("button", "Login")
)

// logOnPath marks the dealer log-on page URL.
const logOnPath = "LogOn"

// Authenticate signs in to the dealer portal. Completion is judged by the
// URL leaving the log-on page, then by the Ready marker; if neither shows the
// run proceeds anyway and the first port's fill step will report the problem.
func Authenticate(ctx context.Context, page browser.Page, l Login) error {
	log := logging.Get(logging.CategoryProvision)
	timer := logging.StartTimer(logging.CategoryProvision, "dealer login")
	defer timer.Stop()

	loadTimeout := l.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = 70 * time.Second
	}
	waitTimeout := l.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 20 * time.Second
	}

	if err := page.Navigate(ctx, l.URL, loadTimeout); err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}

	fields := []struct {
		loc  browser.Locator
		text string
	}{
		{dealerCodeField, l.DealerCode},
		{userNameField, l.User},
		{loginPassword, l.Password},
	}
	for _, f := range fields {
		el, err := browser.WaitFor(ctx, page, f.loc, waitTimeout)
		if err != nil {
			return fmt.Errorf("login form: %w", err)
		}
		if err := el.Click(ctx); err != nil {
			return fmt.Errorf("login form %s: %w", f.loc, err)
		}
		if err := el.Fill(ctx, f.text); err != nil {
			return fmt.Errorf("login form %s: %w", f.loc, err)
		}
	}
	btn, err := browser.WaitFor(ctx, page, loginButton, waitTimeout)
	if err != nil {
		return fmt.Errorf("login button: %w", err)
	}
	if err := btn.Click(ctx); err != nil {
		return fmt.Errorf("login button: %w", err)
	}

	log.Info("waiting for login to complete...")
	switch {
	case waitURL(ctx, page, func(u string) bool { return !strings.Contains(u, logOnPath) }, waitTimeout):
		log.Info("login completed: %s", page.CurrentURL())
	case ctx.Err() != nil:
		return ctx.Err()
	case page.Closed():
		return browser.ErrSessionClosed
	case l.Ready != nil:
		if _, err := browser.WaitFor(ctx, page, *l.Ready, waitTimeout); err == nil {
			log.Info("login completed: %s detected", l.Ready)
		} else if browser.IsFatal(err) {
			return err
		} else {
			log.Warn("login completion check failed, proceeding anyway")
		}
	default:
		log.Warn("login completion check failed, proceeding anyway")
	}

	if l.Settle > 0 {
		return sleep(ctx, l.Settle)
	}
	return nil
}

// waitURL polls the page URL until match accepts it or timeout elapses.
func waitURL(ctx context.Context, page browser.Page, match func(string) bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	interval := min(250*time.Millisecond, max(timeout/4, time.Millisecond))
	for {
		if page.Closed() || ctx.Err() != nil {
			return false
		}
		if match(page.CurrentURL()) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}
