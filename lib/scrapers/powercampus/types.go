// Package powercampus scrapes a PowerCampus Self-Service portal
// through a headless browser: the two-phase login flow and the grade
// report table. Selectors and URLs are specific to this one portal.
package powercampus

import (
	"errors"
	"strings"

	"gradewatch-backend/lib/browser"
)

// Credentials exist only for the duration of one login call and are
// never persisted.
type Credentials struct {
	Username string
	Password string
}

// Session is the cookie set proving an authenticated portal session.
// It is treated as an opaque capability: cookies are replayed verbatim
// and never inspected individually.
type Session []browser.Cookie

// Course is one tracked course. Grade is nil until a final grade has
// been scraped; a resolved grade is never overwritten.
type Course struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Grade *string `json:"grade"`
}

var (
	// the portal did not recognize the username
	ErrUnknownUsername = errors.New("this username is not registered with the portal")
	// the portal rejected the password
	ErrInvalidPassword = errors.New("invalid password")
	// the login page stopped responding mid-flow
	ErrAuthTimeout = errors.New("the login page did not respond in time")
	// login failed without the portal saying why
	ErrAuthFailed = errors.New("failed to login to your account")
	// the replayed cookies landed back on the login page
	ErrSessionExpired = errors.New("session expired, please login again")
	// the grade report could not be reached within the retry budget
	ErrUpstreamUnreachable = errors.New("could not reach the grade report")
)

// the portal reports outcomes through its frontend, so "are we logged
// in" reduces to "does the address still denote the login page"
func isLoginPage(url string) bool {
	return strings.Contains(url, "LogIn")
}
