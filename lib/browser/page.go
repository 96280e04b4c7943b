package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Cookie is one browser cookie record. The scraping flows treat a set
// of these as an opaque session capability and replay them verbatim.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
}

// Page is one exclusively owned browser tab. All waits honor the
// caller's context deadline on top of the tab's own lifetime.
type Page struct {
	ctx  context.Context
	stop context.CancelFunc
	once sync.Once
}

// run executes actions against the tab, bounded by the caller context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	detach := context.AfterFunc(ctx, cancel)
	defer detach()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}

	err := chromedp.Run(runCtx, actions...)
	// surface the caller's cancellation cause instead of chromedp's
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads the url and waits for the document to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *Page) Location(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *Page) SendKeys(ctx context.Context, selector, value string) error {
	return p.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// WaitVisible blocks until the selector matches a visible node or the
// context is done.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitNavigated blocks until the next page load event fires. The
// listener is registered before returning control to the scheduler so
// a load triggered by an earlier click is not missed.
func (p *Page) WaitNavigated(ctx context.Context) error {
	loaded := make(chan struct{}, 1)

	listenCtx, stopListening := context.WithCancel(p.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev any) {
		if _, ok := ev.(*cdppage.EventLoadEventFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
		}
	})

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

// HTML returns the full rendered document markup.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *Page) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]Cookie, len(raw))
		for i, c := range raw {
			cookies[i] = Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			}
		}
		return nil
	}))
	return cookies, err
}

func (p *Page) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, len(cookies))
	for i, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &expires
		}
		params[i] = param
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
}

// Close releases the tab. Safe to call more than once.
func (p *Page) Close() {
	p.once.Do(p.stop)
}
