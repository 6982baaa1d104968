package provision

import (
	"time"

	"gwprov/internal/browser"
	"gwprov/internal/portdata"
)

// ActivationParams are the account details submitted with every activation.
type ActivationParams struct {
	EntryURL     string
	ZipCode      string
	PIN          string
	ContactPhone string
	Settle       time.Duration
}

// Activation builds the SIM activation workflow:
// IMEI, Continue, SIM, Continue, account details, Submit, "Activation Receipt".
func Activation(p ActivationParams) Workflow {
	receipt := browser.Role("heading", "Activation Receipt")
	cont := browser.Role("button", "Continue")
	return Workflow{
		Name:     "Activation",
		EntryURL: p.EntryURL,
		Required: []portdata.Attribute{portdata.AttrIMEI, portdata.AttrICCID},
		Steps: map[State][]Action{
			StateFillIdentifierA: {
				Fill(browser.Role("textbox", "IMEI"), FromRecord(portdata.AttrIMEI), 10*time.Second),
			},
			StateContinue1: {
				Click(cont, 10*time.Second),
			},
			StateFillIdentifierB: {
				Fill(browser.Role("textbox", "Enter SIM #"), FromRecord(portdata.AttrICCID), 15*time.Second),
			},
			StateContinue2: {
				Click(cont, 15*time.Second),
			},
			StateFillAccountDetails: {
				Fill(browser.Role("textbox", "Account Zip Code"), Literal(p.ZipCode), 15*time.Second),
				Fill(browser.Role("textbox", "Account PIN"), Literal(p.PIN), 0),
				Fill(browser.Role("textbox", "Confirm PIN"), Literal(p.PIN), 0),
				Fill(browser.Role("textbox", "Contact Email"), ContactEmail(), 0),
				Fill(browser.Role("textbox", "Contact Phone #"), Literal(p.ContactPhone), 0),
			},
			StateSubmit: {
				Click(browser.Role("button", "Submit"), 25*time.Second),
			},
		},
		Success:           Marker{Locator: &receipt, URLContains: "/Activate/Receipt/"},
		SubmitWait:        25 * time.Second,
		ActionTimeout:     5 * time.Second,
		NavigationTimeout: 30 * time.Second,
		Settle:            settleOr(p.Settle, 5*time.Second),
	}
}

// RefillParams select the plan purchased for every number.
type RefillParams struct {
	EntryURL string
	PlanName string
	Settle   time.Duration
}

// Refill builds the refill workflow: phone number, Lookup, plan link,
// Purchase Refill, then a receipt or error URL.
func Refill(p RefillParams) Workflow {
	plan := p.PlanName
	if plan == "" {
		plan = "$20 / mo"
	}
	return Workflow{
		Name:     "Refill",
		EntryURL: p.EntryURL,
		Required: []portdata.Attribute{portdata.AttrMDN},
		Steps: map[State][]Action{
			StateFillIdentifierA: {
				Fill(browser.Role("textbox", "Phone Number"), FromRecord(portdata.AttrMDN), 10*time.Second),
			},
			StateContinue1: {
				Click(browser.Role("button", "Lookup Phone Number"), 10*time.Second),
			},
			// the plan link only appears when the lookup found the number
			StateContinue2: {
				Click(browser.Role("link", plan), 20*time.Second),
			},
			StateSubmit: {
				Click(browser.Role("button", "Purchase Refill"), 10*time.Second),
			},
		},
		Success:           Marker{URLContains: "/Refill/Receipt/"},
		Failure:           Marker{URLContains: "/Refill/MobileX/"},
		SubmitWait:        25 * time.Second,
		ActionTimeout:     5 * time.Second,
		NavigationTimeout: 30 * time.Second,
		Settle:            settleOr(p.Settle, 3*time.Second),
	}
}

func settleOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
