package powercampus

import (
	"context"
	"sync"
	"testing"
	"time"

	"gradewatch-backend/lib/browser"
	"gradewatch-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const fakeLoginURL = "https://portal.example.edu/SelfService/Home/LogIn"
const fakeHomeURL = "https://portal.example.edu/SelfService/Home"

// fakeLoginPage scripts the portal's two-phase login UI. Selector
// visibility depends on how far the flow has progressed, which is what
// the real page does.
type fakeLoginPage struct {
	mu    sync.Mutex
	stage int // 0 fresh, 1 username submitted, 2 password submitted

	passwordAppears      bool
	alertAfterUsername   string
	alertAfterPassword   string
	navigatesAfterSignIn bool
	finalURL             string
	cookies              []browser.Cookie

	typed map[string]string
}

func (p *fakeLoginPage) Navigate(ctx context.Context, url string) error {
	return nil
}

func (p *fakeLoginPage) SendKeys(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.typed == nil {
		p.typed = map[string]string{}
	}
	p.typed[selector] = value
	return nil
}

func (p *fakeLoginPage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case nextButtonSelector:
		p.stage = 1
	case signInSelector:
		p.stage = 2
	}
	return nil
}

func (p *fakeLoginPage) visible(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case passwordSelector:
		return p.stage >= 1 && p.passwordAppears
	case alertSelector:
		return p.alertText() != ""
	}
	return false
}

func (p *fakeLoginPage) alertText() string {
	switch p.stage {
	case 1:
		return p.alertAfterUsername
	case 2:
		return p.alertAfterPassword
	}
	return ""
}

func (p *fakeLoginPage) WaitVisible(ctx context.Context, selector string) error {
	for {
		if p.visible(selector) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (p *fakeLoginPage) WaitNavigated(ctx context.Context) error {
	for {
		p.mu.Lock()
		navigated := p.stage >= 2 && p.navigatesAfterSignIn
		p.mu.Unlock()
		if navigated {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (p *fakeLoginPage) Text(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alertText(), nil
}

func (p *fakeLoginPage) Location(ctx context.Context) (string, error) {
	return p.finalURL, nil
}

func (p *fakeLoginPage) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return p.cookies, nil
}

func loginOpts() LoginOptions {
	return LoginOptions{URL: fakeLoginURL, Timeout: time.Millisecond * 100}
}

func TestLoginSuccess(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:powercampus")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	page := &fakeLoginPage{
		passwordAppears:      true,
		navigatesAfterSignIn: true,
		finalURL:             fakeHomeURL,
		cookies: []browser.Cookie{
			{Name: ".AspNetCore.Session", Value: "opaque", Domain: "portal.example.edu"},
		},
	}

	session, err := Login(ctx, page, Credentials{Username: "student", Password: "hunter2"}, loginOpts())
	require.NoError(t, err)
	require.Len(t, session, 1)
	require.Equal(t, "opaque", session[0].Value)
	require.Equal(t, "student", page.typed[usernameSelector])
	require.Equal(t, "hunter2", page.typed[passwordSelector])
}

func TestLoginUnknownUsernameFromAlert(t *testing.T) {
	ctx := context.Background()

	page := &fakeLoginPage{
		alertAfterUsername: "This user name does not exist in the system.",
	}

	_, err := Login(ctx, page, Credentials{Username: "ghost", Password: "x"}, loginOpts())
	require.ErrorIs(t, err, ErrUnknownUsername)
	// existence phrasing is normalized away
	require.Equal(t, ErrUnknownUsername.Error(), err.Error())
}

func TestLoginUnknownUsernameWhenFieldNeverAppears(t *testing.T) {
	ctx := context.Background()

	// no password field and no alert: an invalid-username signal, not
	// a timeout
	page := &fakeLoginPage{}

	_, err := Login(ctx, page, Credentials{Username: "ghost", Password: "x"}, loginOpts())
	require.ErrorIs(t, err, ErrUnknownUsername)
	require.NotErrorIs(t, err, ErrAuthTimeout)
}

func TestLoginInvalidPasswordPassesPortalTextThrough(t *testing.T) {
	ctx := context.Background()

	page := &fakeLoginPage{
		passwordAppears:    true,
		alertAfterPassword: "Your account has been locked for 15 minutes.",
	}

	_, err := Login(ctx, page, Credentials{Username: "student", Password: "wrong"}, loginOpts())
	require.ErrorIs(t, err, ErrInvalidPassword)
	require.Contains(t, err.Error(), "locked for 15 minutes")
}

func TestLoginInvalidPasswordNormalized(t *testing.T) {
	ctx := context.Background()

	page := &fakeLoginPage{
		passwordAppears:    true,
		alertAfterPassword: "Invalid username or password.",
	}

	_, err := Login(ctx, page, Credentials{Username: "student", Password: "wrong"}, loginOpts())
	require.ErrorIs(t, err, ErrInvalidPassword)
	require.Equal(t, ErrInvalidPassword.Error(), err.Error())
}

func TestLoginTimeoutAfterPasswordSubmit(t *testing.T) {
	ctx := context.Background()

	// no navigation and no alert after sign-in: the page went quiet
	page := &fakeLoginPage{passwordAppears: true}

	_, err := Login(ctx, page, Credentials{Username: "student", Password: "hunter2"}, loginOpts())
	require.ErrorIs(t, err, ErrAuthTimeout)
}

func TestLoginFailedWhenStillOnLoginURL(t *testing.T) {
	ctx := context.Background()

	page := &fakeLoginPage{
		passwordAppears:      true,
		navigatesAfterSignIn: true,
		finalURL:             fakeLoginURL,
	}

	_, err := Login(ctx, page, Credentials{Username: "student", Password: "hunter2"}, loginOpts())
	require.ErrorIs(t, err, ErrAuthFailed)
}
