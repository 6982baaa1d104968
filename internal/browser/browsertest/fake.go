// Package browsertest provides an in-memory browser.Page for tests. Elements
// are registered under the string form of the locator that should find them;
// hooks on navigation, click and fill let a test script page transitions.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gwprov/internal/browser"
)

// Page is a scriptable fake page or frame.
type Page struct {
	mu       sync.Mutex
	parent   *Page
	url      string
	body     string
	closed   bool
	elements map[string][]*Element
	frames   map[string]*Page

	// Navigations records every Navigate call in order.
	Navigations []string
	// NavigateErr, when set, is returned by Navigate.
	NavigateErr error
	// OnNavigate runs after a successful Navigate.
	OnNavigate func(p *Page, url string)
}

// NewPage returns an empty page at url.
func NewPage(url string) *Page {
	return &Page{
		url:      url,
		elements: make(map[string][]*Element),
		frames:   make(map[string]*Page),
	}
}

// Add registers elements found by loc, after any already registered.
func (p *Page) Add(loc browser.Locator, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := loc.String()
	for _, el := range els {
		el.adopt(p)
	}
	p.elements[key] = append(p.elements[key], els...)
	return p
}

// Set replaces the elements found by loc.
func (p *Page) Set(loc browser.Locator, els ...*Element) *Page {
	p.mu.Lock()
	delete(p.elements, loc.String())
	p.mu.Unlock()
	return p.Add(loc, els...)
}

// Remove makes loc match nothing.
func (p *Page) Remove(loc browser.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, loc.String())
}

// Element returns the first element registered for loc, or nil.
func (p *Page) Element(loc browser.Locator) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.elements[loc.String()]
	if len(els) == 0 {
		return nil
	}
	return els[0]
}

// AddFrame registers a named child frame and returns it.
func (p *Page) AddFrame(name string, f *Page) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.parent = p
	p.frames[name] = f
	return f
}

// SetBody sets the text returned by BodyText.
func (p *Page) SetBody(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = text
}

// SetURL changes the current URL without a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Close marks the page and all its frames closed.
func (p *Page) Close() {
	r := p.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (p *Page) root() *Page {
	for p.parent != nil {
		p = p.parent
	}
	return p
}

// NavigationCount returns how many times Navigate succeeded.
func (p *Page) NavigationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Navigations)
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if p.Closed() {
		return browser.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.NavigateErr != nil {
		err := p.NavigateErr
		p.mu.Unlock()
		return err
	}
	p.url = url
	p.Navigations = append(p.Navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) Locate(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	els, err := p.LocateAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, browser.ErrNotFound)
	}
	return els[0], nil
}

func (p *Page) LocateAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if p.Closed() {
		return nil, browser.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	els := p.elements[loc.String()]
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (p *Page) Frame(ctx context.Context, name string) (browser.Page, error) {
	if p.Closed() {
		return nil, browser.ErrSessionClosed
	}
	p.mu.Lock()
	f, ok := p.frames[name]
	p.mu.Unlock()
	if ok {
		return f, nil
	}
	p.mu.Lock()
	children := make([]*Page, 0, len(p.frames))
	for _, c := range p.frames {
		children = append(children, c)
	}
	p.mu.Unlock()
	for _, c := range children {
		if f, err := c.Frame(ctx, name); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("frame %q: %w", name, browser.ErrNotFound)
}

func (p *Page) BodyText(ctx context.Context) (string, error) {
	if p.Closed() {
		return "", browser.ErrSessionClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body, nil
}

func (p *Page) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Closed() bool {
	r := p.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Element is a fake DOM node. Exported fields may be set before the element
// is handed to a page; afterwards use the accessor methods.
type Element struct {
	Text    string
	HTML    string
	Hidden  bool
	Value   string
	Checked bool

	FillErr  error
	ClickErr error
	OnFill   func(e *Element, text string) error
	OnClick  func(e *Element) error

	clicks   int
	fills    []string
	page     *Page
	children map[string][]*Element
}

// NewElement returns a visible element with the given text.
func NewElement(text string) *Element {
	return &Element{Text: text}
}

func (e *Element) adopt(p *Page) {
	e.page = p
	for _, kids := range e.children {
		for _, k := range kids {
			k.adopt(p)
		}
	}
}

func (e *Element) lock() func() {
	if e.page == nil {
		return func() {}
	}
	e.page.mu.Lock()
	return e.page.mu.Unlock
}

func (e *Element) closed() bool {
	return e.page != nil && e.page.Closed()
}

// Clicks returns how many times the element was clicked.
func (e *Element) Clicks() int {
	defer e.lock()()
	return e.clicks
}

// Fills returns every value filled into the element.
func (e *Element) Fills() []string {
	defer e.lock()()
	return append([]string(nil), e.fills...)
}

// CurrentValue returns the element's value.
func (e *Element) CurrentValue() string {
	defer e.lock()()
	return e.Value
}

// SetHidden toggles visibility.
func (e *Element) SetHidden(hidden bool) {
	defer e.lock()()
	e.Hidden = hidden
}

// SetValue changes the element's value.
func (e *Element) SetValue(v string) {
	defer e.lock()()
	e.Value = v
}

func (e *Element) WaitVisible(ctx context.Context, timeout time.Duration) error {
	if e.closed() {
		return browser.ErrSessionClosed
	}
	if !e.Visible() {
		return fmt.Errorf("element hidden: %w", browser.ErrNotFound)
	}
	return nil
}

func (e *Element) Visible() bool {
	defer e.lock()()
	return !e.Hidden
}

func (e *Element) Fill(ctx context.Context, text string) error {
	if e.closed() {
		return browser.ErrSessionClosed
	}
	unlock := e.lock()
	if e.FillErr != nil {
		err := e.FillErr
		unlock()
		return err
	}
	e.fills = append(e.fills, text)
	e.Value = text
	hook := e.OnFill
	unlock()

	if hook != nil {
		return hook(e, text)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if e.closed() {
		return browser.ErrSessionClosed
	}
	unlock := e.lock()
	if e.ClickErr != nil {
		err := e.ClickErr
		unlock()
		return err
	}
	e.clicks++
	hook := e.OnClick
	unlock()

	if hook != nil {
		return hook(e)
	}
	return nil
}

func (e *Element) Check(ctx context.Context) error {
	return e.setChecked(true)
}

func (e *Element) Uncheck(ctx context.Context) error {
	return e.setChecked(false)
}

func (e *Element) setChecked(v bool) error {
	if e.closed() {
		return browser.ErrSessionClosed
	}
	defer e.lock()()
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.Checked = v
	return nil
}

// IsChecked reports the checkbox state.
func (e *Element) IsChecked() bool {
	defer e.lock()()
	return e.Checked
}

// AddChild registers descendants found by loc via Find. Call before the
// element is added to a page.
func (e *Element) AddChild(loc browser.Locator, els ...*Element) *Element {
	if e.children == nil {
		e.children = make(map[string][]*Element)
	}
	e.children[loc.String()] = append(e.children[loc.String()], els...)
	return e
}

func (e *Element) Find(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	if e.closed() {
		return nil, browser.ErrSessionClosed
	}
	unlock := e.lock()
	els := e.children[loc.String()]
	unlock()
	if len(els) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, browser.ErrNotFound)
	}
	child := els[0]
	return child, nil
}

func (e *Element) InnerText(ctx context.Context) (string, error) {
	if e.closed() {
		return "", browser.ErrSessionClosed
	}
	defer e.lock()()
	return e.Text, nil
}

func (e *Element) InnerHTML(ctx context.Context) (string, error) {
	if e.closed() {
		return "", browser.ErrSessionClosed
	}
	defer e.lock()()
	if e.HTML != "" {
		return e.HTML, nil
	}
	return e.Text, nil
}

var (
	_ browser.Page    = (*Page)(nil)
	_ browser.Element = (*Element)(nil)
)
