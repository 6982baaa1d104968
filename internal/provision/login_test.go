package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwprov/internal/browser"
	"gwprov/internal/browser/browsertest"
)

const loginURL = "https://dealer.test/Account/LogOn?ReturnUrl=%2fActivate%2fMobileX"

type loginPage struct {
	page                   *browsertest.Page
	dealer, user, password *browsertest.Element
	button                 *browsertest.Element
}

func newLoginPage(after string) *loginPage {
	l := &loginPage{
		page:     browsertest.NewPage("about:blank"),
		dealer:   browsertest.NewElement(""),
		user:     browsertest.NewElement(""),
		password: browsertest.NewElement(""),
		button:   browsertest.NewElement("Login"),
	}
	l.page.
		Add(dealerCodeField, l.dealer).
		Add(userNameField, l.user).
		Add(loginPassword, l.password).
		Add(loginButton, l.button)
	l.button.OnClick = func(*browsertest.Element) error {
		if after != "" {
			l.page.SetURL(after)
		}
		return nil
	}
	return l
}

func testLogin() Login {
	return Login{
		URL:         loginURL,
		DealerCode:  "00038031",
		User:        "dealer@example.test",
		Password:    "secret",
		WaitTimeout: 30 * time.Millisecond,
	}
}

func TestAuthenticate_URLLeavesLogOn(t *testing.T) {
	lp := newLoginPage("https://dealer.test/Activate/MobileX/Activation/MOBILEX/00001777")

	require.NoError(t, Authenticate(context.Background(), lp.page, testLogin()))

	assert.Equal(t, []string{loginURL}, lp.page.Navigations)
	assert.Equal(t, []string{"00038031"}, lp.dealer.Fills())
	assert.Equal(t, []string{"dealer@example.test"}, lp.user.Fills())
	assert.Equal(t, []string{"secret"}, lp.password.Fills())
	assert.Equal(t, 1, lp.button.Clicks())
}

func TestAuthenticate_ReadyMarkerFallback(t *testing.T) {
	lp := newLoginPage("")
	imei := browser.CSS(`input[name="IMEI"]`)
	lp.page.Add(imei, browsertest.NewElement(""))

	l := testLogin()
	l.Ready = &imei
	require.NoError(t, Authenticate(context.Background(), lp.page, l))
	assert.Contains(t, lp.page.CurrentURL(), "LogOn")
}

func TestAuthenticate_ProceedsWhenCompletionUnclear(t *testing.T) {
	lp := newLoginPage("")
	assert.NoError(t, Authenticate(context.Background(), lp.page, testLogin()))
}

func TestAuthenticate_MissingForm(t *testing.T) {
	lp := newLoginPage("")
	lp.page.Remove(dealerCodeField)

	err := Authenticate(context.Background(), lp.page, testLogin())
	require.ErrorIs(t, err, browser.ErrNotFound)
	assert.Zero(t, lp.button.Clicks())
}

func TestAuthenticate_ClosedPage(t *testing.T) {
	lp := newLoginPage("")
	lp.page.Close()

	err := Authenticate(context.Background(), lp.page, testLogin())
	require.ErrorIs(t, err, browser.ErrSessionClosed)
}
