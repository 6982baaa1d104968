package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwprov/internal/browser"
	"gwprov/internal/browser/browsertest"
)

func TestLocatorString(t *testing.T) {
	assert.Equal(t, "css=#IMEI", browser.CSS("#IMEI").String())
	assert.Equal(t, `role=textbox[name="Enter SIM #"]`, browser.Role("textbox", "Enter SIM #").String())
	assert.Equal(t, `css=td:has-text("OK")`, browser.CSS("td").WithText("OK").String())
	assert.Equal(t,
		`role=cell[name="at+cgsn Send"] >> role=button`,
		browser.Role("button", "").In(browser.Role("cell", "at+cgsn Send")).String())
}

func TestLocatorIn_CopiesParent(t *testing.T) {
	parent := browser.CSS("table")
	child := browser.CSS("td").In(parent)
	parent.CSS = "div"
	assert.Equal(t, "css=table >> css=td", child.String())
}

func TestWaitFor_Found(t *testing.T) {
	page := browsertest.NewPage("http://x/")
	page.Add(browser.CSS("#a"), browsertest.NewElement("hello"))

	el, err := browser.WaitFor(context.Background(), page, browser.CSS("#a"), time.Second)
	require.NoError(t, err)
	text, err := el.InnerText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestWaitFor_AppearsLater(t *testing.T) {
	page := browsertest.NewPage("http://x/")
	hidden := &browsertest.Element{Hidden: true}
	page.Add(browser.CSS("#late"), hidden)

	go func() {
		time.Sleep(30 * time.Millisecond)
		hidden.SetHidden(false)
	}()

	_, err := browser.WaitFor(context.Background(), page, browser.CSS("#late"), 2*time.Second)
	require.NoError(t, err)
}

func TestWaitFor_Timeout(t *testing.T) {
	page := browsertest.NewPage("http://x/")
	_, err := browser.WaitFor(context.Background(), page, browser.CSS("#missing"), 40*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrNotFound))
	assert.False(t, browser.IsFatal(err))
}

func TestWaitFor_Closed(t *testing.T) {
	page := browsertest.NewPage("http://x/")
	page.Close()
	_, err := browser.WaitFor(context.Background(), page, browser.CSS("#a"), time.Second)
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	assert.True(t, browser.IsFatal(err))
}

func TestWaitFor_Cancelled(t *testing.T) {
	page := browsertest.NewPage("http://x/")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := browser.WaitFor(ctx, page, browser.CSS("#a"), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, browser.IsFatal(err))
}

func TestFirstLines(t *testing.T) {
	page := browsertest.NewPage("http://x/")
	page.SetBody("  Error  \n\n line two\nthree\nfour\n")
	assert.Equal(t, []string{"Error", "line two", "three"}, browser.FirstLines(context.Background(), page, 3))

	page.Close()
	assert.Empty(t, browser.FirstLines(context.Background(), page, 3))
}

func TestFakeFrames(t *testing.T) {
	page := browsertest.NewPage("http://gw/")
	main := page.AddFrame("main", browsertest.NewPage("http://gw/main"))
	right := main.AddFrame("right", browsertest.NewPage("http://gw/right"))
	right.Add(browser.CSS("#ID_goip_at_cmd"), browsertest.NewElement(""))

	f, err := page.Frame(context.Background(), "right")
	require.NoError(t, err)
	_, err = f.Locate(context.Background(), browser.CSS("#ID_goip_at_cmd"))
	require.NoError(t, err)

	page.Close()
	assert.True(t, f.Closed(), "frames follow their page")
}

func TestSessionManager_NotConnectedUntilStarted(t *testing.T) {
	sm := browser.NewSessionManager(browser.DefaultConfig())
	assert.False(t, sm.IsConnected())
	assert.Nil(t, sm.Page("unknown"))
	require.NoError(t, sm.Shutdown(context.Background()))
	assert.False(t, sm.IsConnected())
}
