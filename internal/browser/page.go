package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSessionClosed is returned once the page or its browser is gone.
	// Callers treat it as fatal for the current run.
	ErrSessionClosed = errors.New("browser session closed")
	// ErrNotFound is returned when no element matches a locator in time.
	ErrNotFound = errors.New("element not found")
)

// Page is the browser capability consumed by the gateway console and the
// provisioning engine. A Page may be a top-level tab or a frame inside one.
type Page interface {
	// Navigate loads url and waits for the load event, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Locate returns the first element matching loc right now, or ErrNotFound.
	Locate(ctx context.Context, loc Locator) (Element, error)
	// LocateAll returns every element matching loc right now.
	LocateAll(ctx context.Context, loc Locator) ([]Element, error)
	// Frame returns the frame named name, searching nested framesets.
	Frame(ctx context.Context, name string) (Page, error)
	// BodyText returns the visible text of the document body.
	BodyText(ctx context.Context) (string, error)
	CurrentURL() string
	Closed() bool
}

// Element is a handle to one DOM node.
type Element interface {
	WaitVisible(ctx context.Context, timeout time.Duration) error
	Visible() bool
	Fill(ctx context.Context, text string) error
	Click(ctx context.Context) error
	Check(ctx context.Context) error
	Uncheck(ctx context.Context) error
	// Find returns the first descendant matching loc, or ErrNotFound.
	Find(ctx context.Context, loc Locator) (Element, error)
	InnerText(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
}

// pollInterval bounds how often WaitFor re-queries the DOM.
const pollInterval = 250 * time.Millisecond

// WaitFor polls until an element matching loc is visible or timeout elapses.
// A closed page yields ErrSessionClosed and a cancelled ctx yields ctx.Err().
func WaitFor(ctx context.Context, p Page, loc Locator, timeout time.Duration) (Element, error) {
	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if p.Closed() {
			return nil, ErrSessionClosed
		}
		el, err := p.Locate(deadline, loc)
		switch {
		case err == nil && el.Visible():
			return el, nil
		case err != nil && errors.Is(err, ErrSessionClosed):
			return nil, err
		}

		wait := pollInterval
		if timeout < 4*wait {
			wait = max(timeout/4, time.Millisecond)
		}
		select {
		case <-deadline.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%s after %s: %w", loc, timeout, ErrNotFound)
		case <-time.After(wait):
		}
	}
}

// FirstLines returns up to n non-empty trimmed lines of the page body text.
// Errors reading the page yield an empty slice.
func FirstLines(ctx context.Context, p Page, n int) []string {
	text, err := p.BodyText(ctx)
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return lines
}

// IsFatal reports whether err should end the run rather than the current step.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled)
}
