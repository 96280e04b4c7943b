package powercampus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gradewatch-backend/lib/browser"
	"gradewatch-backend/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/powercampus")

const (
	usernameSelector   = "#txtUsername"
	nextButtonSelector = "#btnNext"
	passwordSelector   = "#txtPassword"
	signInSelector     = "#btnSignIn"
	// inline error dialog, the portal's only failure signal
	alertSelector = `div[role="alert"]`
)

// LoginPage is the slice of a browser page the login flow needs.
type LoginPage interface {
	Navigate(ctx context.Context, url string) error
	SendKeys(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
	WaitNavigated(ctx context.Context) error
	Text(ctx context.Context, selector string) (string, error)
	Location(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]browser.Cookie, error)
}

type LoginOptions struct {
	URL string
	// bound on each of the two decision points
	Timeout time.Duration
}

// Login drives the portal's two-phase login UI on a borrowed page: the
// username and the password are submitted separately and each can be
// rejected independently. On success it returns the page's full cookie
// set as the session. The caller owns the page and must close it.
//
// The portal embeds its errors in markup rather than status codes, so
// each phase races the happy-path condition against the inline alert.
func Login(ctx context.Context, page LoginPage, creds Credentials, opts LoginOptions) (Session, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	err := page.Navigate(ctx, opts.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load login page")
		return nil, err
	}

	err = page.SendKeys(ctx, usernameSelector, creds.Username)
	if err != nil {
		return nil, err
	}
	err = page.Click(ctx, nextButtonSelector)
	if err != nil {
		return nil, err
	}

	switch waitFirst(ctx, opts.Timeout,
		func(ctx context.Context) error { return page.WaitVisible(ctx, passwordSelector) },
		func(ctx context.Context) error { return page.WaitVisible(ctx, alertSelector) },
	) {
	case 0:
		// password prompt appeared, the username was accepted
	case 1:
		err := usernameRejected(ctx, page)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	default:
		// the password field never appearing is an invalid-username
		// signal, not a timeout: the page itself stayed responsive
		span.SetStatus(codes.Error, ErrUnknownUsername.Error())
		return nil, ErrUnknownUsername
	}

	err = page.SendKeys(ctx, passwordSelector, creds.Password)
	if err != nil {
		return nil, err
	}
	err = page.Click(ctx, signInSelector)
	if err != nil {
		return nil, err
	}

	switch waitFirst(ctx, opts.Timeout,
		func(ctx context.Context) error { return page.WaitNavigated(ctx) },
		func(ctx context.Context) error { return page.WaitVisible(ctx, alertSelector) },
	) {
	case 0:
		// navigated away, inspect where we landed below
	case 1:
		err := passwordRejected(ctx, page)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	default:
		span.SetStatus(codes.Error, ErrAuthTimeout.Error())
		return nil, ErrAuthTimeout
	}

	location, err := page.Location(ctx)
	if err != nil {
		return nil, err
	}
	if isLoginPage(location) {
		span.SetStatus(codes.Error, ErrAuthFailed.Error())
		return nil, ErrAuthFailed
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract session cookies")
		return nil, err
	}
	return Session(cookies), nil
}

func usernameRejected(ctx context.Context, page LoginPage) error {
	text := alertText(ctx, page)
	// normalize the portal's "user does not exist" phrasing, pass
	// anything else through for the caller to show
	if text == "" || textutil.MatchAny(text, "exist") {
		return ErrUnknownUsername
	}
	return fmt.Errorf("%w: %s", ErrUnknownUsername, text)
}

func passwordRejected(ctx context.Context, page LoginPage) error {
	text := alertText(ctx, page)
	if text == "" || textutil.MatchAny(text, "invalid") {
		return ErrInvalidPassword
	}
	return fmt.Errorf("%w: %s", ErrInvalidPassword, text)
}

func alertText(ctx context.Context, page LoginPage) string {
	text, err := page.Text(ctx, alertSelector)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// waitFirst runs each condition in parallel and returns the index of
// the first to succeed, cancelling the rest. Returns -1 when none
// succeed within timeout.
func waitFirst(parent context.Context, timeout time.Duration, conds ...func(context.Context) error) int {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	winner := make(chan int, len(conds))
	wg := sync.WaitGroup{}
	for i, cond := range conds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cond(ctx); err == nil {
				winner <- i
			}
		}()
	}
	go func() {
		wg.Wait()
		close(winner)
	}()

	i, ok := <-winner
	if !ok {
		return -1
	}
	return i
}
