// Package browser drives Chrome through go-rod and exposes the small Page /
// Element capability the gateway console and provisioning engine are written
// against.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gwprov/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Session describes the public metadata for a tracked browser context.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	Label      string    `json:"label,omitempty"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	page *rod.Page
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string   `yaml:"debugger_url" json:"debugger_url"`
	Launch              []string `yaml:"launch" json:"launch"`
	Headless            bool     `yaml:"headless" json:"headless"`
	SlowMotionMs        int      `yaml:"slow_motion_ms" json:"slow_motion_ms"`
	ViewportWidth       int      `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height" json:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms" json:"navigation_timeout_ms"`
	SessionStore        string   `yaml:"session_store" json:"session_store"`
}

// DefaultConfig returns sensible defaults. Operators watch the run, so the
// browser is headed unless configured otherwise.
func DefaultConfig() Config {
	return Config{
		Headless:            false,
		SlowMotionMs:        50,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// SessionManager owns the Chrome instance and tracks the pages handed out.
type SessionManager struct {
	cfg      Config
	mu       sync.RWMutex
	browser  *rod.Browser
	sessions map[string]*sessionRecord
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.Get(logging.CategoryBrowser).Warn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.sessions = make(map[string]*sessionRecord)
	}

	if err := m.loadSessionsLocked(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(m.cfg.Headless)
		for _, rawFlag := range m.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback without the extra flags
			fallback := launcher.New().Bin(bin).Headless(m.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(m.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if m.cfg.SlowMotionMs > 0 {
		browser = browser.SlowMotion(time.Duration(m.cfg.SlowMotionMs) * time.Millisecond)
	}
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	logging.Browser("connected to %s (headless=%v)", controlURL, m.cfg.Headless)
	return nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes tracked pages and the browser.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, record := range m.sessions {
		if record.page != nil {
			_ = record.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	return err
}

// CreateSession opens a new page in its own incognito context and navigates to url.
// label names the session in logs and the session store (e.g. "gw101").
func (m *SessionManager) CreateSession(ctx context.Context, label, url string) (*Session, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.Get(logging.CategoryBrowser).Warn("failed to set viewport: %v", err)
	}

	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		Label:      label,
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page}
	m.mu.Unlock()
	_ = m.persistSessions()

	if url != "" {
		if err := m.Page(meta.ID).Navigate(ctx, url, m.cfg.NavigationTimeout()); err != nil {
			return &meta, fmt.Errorf("navigate %s: %w", url, err)
		}
	}
	return &meta, nil
}

// Page returns the automation handle for a session, or nil if it is unknown
// or was restored from the session store without a live target.
func (m *SessionManager) Page(sessionID string) Page {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok || rec.page == nil {
		return nil
	}
	return newRodPage(rec.page, m.touch(sessionID))
}

// touch returns a callback that records activity on a session.
func (m *SessionManager) touch(sessionID string) func(url string) {
	return func(url string) {
		m.UpdateMetadata(sessionID, func(s Session) Session {
			s.URL = url
			s.LastActive = time.Now()
			return s
		})
	}
}

// UpdateMetadata updates session metadata.
func (m *SessionManager) UpdateMetadata(sessionID string, updater func(Session) Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	rec.meta = updater(rec.meta)
}

// GetSession returns session metadata.
func (m *SessionManager) GetSession(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// CloseSession closes the page of one session and forgets it.
func (m *SessionManager) CloseSession(sessionID string) error {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok || rec.page == nil {
		return nil
	}
	_ = m.persistSessions()
	return rec.page.Close()
}

func (m *SessionManager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		sessions = append(sessions, rec.meta)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}

// loadSessionsLocked loads persisted metadata. Caller must hold lock.
func (m *SessionManager) loadSessionsLocked() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	data, err := os.ReadFile(m.cfg.SessionStore)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return err
	}

	for _, s := range sessions {
		s.Status = "detached"
		m.sessions[s.ID] = &sessionRecord{meta: s, page: nil}
	}
	return nil
}
