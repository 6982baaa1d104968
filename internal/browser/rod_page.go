package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

//go:embed finder.js
var finderJS string

// maxFrameDepth bounds the frameset search; gateway consoles nest two levels.
const maxFrameDepth = 4

// rodPage adapts a rod page (or frame) to Page.
type rodPage struct {
	page    *rod.Page
	root    *rod.Page // top-level target, used for liveness
	onVisit func(url string)
}

func newRodPage(p *rod.Page, onVisit func(url string)) *rodPage {
	return &rodPage{page: p, root: p, onVisit: onVisit}
}

func (p *rodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if p.Closed() {
		return ErrSessionClosed
	}
	pg := p.page.Context(ctx).Timeout(timeout)
	if err := pg.Navigate(url); err != nil {
		return p.wrap(fmt.Errorf("navigate %s: %w", url, err))
	}
	if err := pg.WaitLoad(); err != nil {
		return p.wrap(fmt.Errorf("wait load %s: %w", url, err))
	}
	if p.onVisit != nil {
		p.onVisit(url)
	}
	return nil
}

func (p *rodPage) Locate(ctx context.Context, loc Locator) (Element, error) {
	els, err := p.find(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return els[0], nil
}

func (p *rodPage) LocateAll(ctx context.Context, loc Locator) ([]Element, error) {
	return p.find(ctx, loc)
}

func (p *rodPage) find(ctx context.Context, loc Locator) ([]Element, error) {
	if p.Closed() {
		return nil, ErrSessionClosed
	}
	found, err := p.page.Context(ctx).ElementsByJS(rod.Eval(finderJS, loc))
	if err != nil {
		return nil, p.wrap(fmt.Errorf("locate %s: %w", loc, err))
	}
	out := make([]Element, 0, len(found))
	for _, el := range found {
		out = append(out, &rodElement{el: el, owner: p})
	}
	return out, nil
}

func (p *rodPage) Frame(ctx context.Context, name string) (Page, error) {
	if p.Closed() {
		return nil, ErrSessionClosed
	}
	frame, err := p.findFrame(ctx, p.page, name, 0)
	if err != nil {
		return nil, p.wrap(err)
	}
	if frame == nil {
		return nil, fmt.Errorf("frame %q: %w", name, ErrNotFound)
	}
	return &rodPage{page: frame, root: p.root, onVisit: p.onVisit}, nil
}

// findFrame searches frame and iframe elements depth-first. A nil page with a
// nil error means no frame of that name exists.
func (p *rodPage) findFrame(ctx context.Context, in *rod.Page, name string, depth int) (*rod.Page, error) {
	if depth > maxFrameDepth {
		return nil, nil
	}
	scoped := in.Context(ctx)
	named, err := scoped.Elements(fmt.Sprintf(`frame[name=%q], iframe[name=%q]`, name, name))
	if err != nil {
		return nil, err
	}
	if len(named) > 0 {
		return named[0].Frame()
	}

	children, err := scoped.Elements("frame, iframe")
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		inner, err := child.Frame()
		if err != nil {
			continue
		}
		if found, err := p.findFrame(ctx, inner, name, depth+1); err == nil && found != nil {
			return found, nil
		}
	}
	return nil, nil
}

func (p *rodPage) BodyText(ctx context.Context) (string, error) {
	if p.Closed() {
		return "", ErrSessionClosed
	}
	res, err := p.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", p.wrap(err)
	}
	return res.Value.Str(), nil
}

func (p *rodPage) CurrentURL() string {
	res, err := p.page.Eval(`() => location.href`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (p *rodPage) Closed() bool {
	_, err := p.root.Info()
	return err != nil
}

// wrap maps driver failures on a dead target to ErrSessionClosed.
func (p *rodPage) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if p.Closed() {
		return fmt.Errorf("%v: %w", err, ErrSessionClosed)
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return err
}

// rodElement adapts a rod element to Element.
type rodElement struct {
	el    *rod.Element
	owner *rodPage
}

func (e *rodElement) WaitVisible(ctx context.Context, timeout time.Duration) error {
	return e.owner.wrap(e.el.Context(ctx).Timeout(timeout).WaitVisible())
}

func (e *rodElement) Visible() bool {
	ok, err := e.el.Visible()
	return err == nil && ok
}

// Fill replaces the current value, like a user selecting all and typing.
func (e *rodElement) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return e.owner.wrap(fmt.Errorf("select text: %w", err))
	}
	return e.owner.wrap(el.Input(text))
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.owner.wrap(e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

// Check clicks a checkbox only when it is not already checked.
func (e *rodElement) Check(ctx context.Context) error {
	return e.setChecked(ctx, true)
}

// Uncheck clicks a checkbox only when it is checked.
func (e *rodElement) Uncheck(ctx context.Context) error {
	return e.setChecked(ctx, false)
}

func (e *rodElement) setChecked(ctx context.Context, want bool) error {
	res, err := e.el.Context(ctx).Eval(`() => !!this.checked`)
	if err != nil {
		return e.owner.wrap(err)
	}
	if res.Value.Bool() == want {
		return nil
	}
	return e.Click(ctx)
}

func (e *rodElement) Find(ctx context.Context, loc Locator) (Element, error) {
	found, err := e.el.Context(ctx).ElementsByJS(rod.Eval(finderJS, loc))
	if err != nil {
		return nil, e.owner.wrap(fmt.Errorf("locate %s: %w", loc, err))
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return &rodElement{el: found[0], owner: e.owner}, nil
}

func (e *rodElement) InnerText(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.innerText || this.textContent || ""`)
	if err != nil {
		return "", e.owner.wrap(err)
	}
	return res.Value.Str(), nil
}

func (e *rodElement) InnerHTML(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.innerHTML`)
	if err != nil {
		return "", e.owner.wrap(err)
	}
	return res.Value.Str(), nil
}
