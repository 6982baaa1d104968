package config

import (
	"time"

	"gwprov/internal/provision"
)

// WorkflowsConfig holds the dealer portal settings per workflow.
type WorkflowsConfig struct {
	Activation ActivationConfig `yaml:"activation"`
	Refill     RefillConfig     `yaml:"refill"`
}

// LoginConfig is the dealer portal sign-in.
type LoginConfig struct {
	LoginURL   string `yaml:"login_url" validate:"required,url"`
	DealerCode string `yaml:"dealer_code"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
}

func defaultLogin() LoginConfig {
	return LoginConfig{LoginURL: "https://www.modernwirelessusa.com/Account/LogOn"}
}

// ActivationConfig configures the activation workflow.
type ActivationConfig struct {
	Login        LoginConfig `yaml:",inline"`
	EntryURL     string      `yaml:"entry_url" validate:"required,url"`
	ZipCode      string      `yaml:"zip_code" validate:"required,numeric,len=5"`
	PIN          string      `yaml:"pin" validate:"required,numeric"`
	ContactPhone string      `yaml:"contact_phone" validate:"required,numeric,len=10"`
	Settle       string      `yaml:"settle" validate:"duration"`
}

// RefillConfig configures the refill workflow.
type RefillConfig struct {
	Login    LoginConfig `yaml:",inline"`
	EntryURL string      `yaml:"entry_url" validate:"required,url"`
	PlanName string      `yaml:"plan_name" validate:"required"`
	Settle   string      `yaml:"settle" validate:"duration"`
}

// Params returns the activation workflow parameters.
func (a ActivationConfig) Params() provision.ActivationParams {
	return provision.ActivationParams{
		EntryURL:     a.EntryURL,
		ZipCode:      a.ZipCode,
		PIN:          a.PIN,
		ContactPhone: a.ContactPhone,
		Settle:       duration(a.Settle, 5*time.Second),
	}
}

// Params returns the refill workflow parameters.
func (r RefillConfig) Params() provision.RefillParams {
	return provision.RefillParams{
		EntryURL: r.EntryURL,
		PlanName: r.PlanName,
		Settle:   duration(r.Settle, 3*time.Second),
	}
}

// Authenticator returns the portal sign-in for a workflow.
func (l LoginConfig) Authenticator() provision.Login {
	return provision.Login{
		URL:         l.LoginURL,
		DealerCode:  l.DealerCode,
		User:        l.User,
		Password:    l.Password,
		LoadTimeout: 70 * time.Second,
		WaitTimeout: 20 * time.Second,
		Settle:      2 * time.Second,
	}
}
