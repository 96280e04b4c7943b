// Package grades ties the scraping flows together: authentication,
// report extraction, the durable grade cache and notifications.
package grades

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gradewatch-backend/lib/browser"
	"gradewatch-backend/lib/coursecache"
	"gradewatch-backend/lib/notify"
	"gradewatch-backend/lib/scrapers/powercampus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/grades")

// the caller left out a required field
var ErrInvalidArgument = errors.New("missing required fields")

// Page is one borrowed browser tab, wide enough for both flows.
type Page interface {
	powercampus.LoginPage
	powercampus.ReportPage
	Close()
}

// Browser lends out pages; the real implementation is lib/browser.
type Browser interface {
	AcquirePage() (Page, error)
}

type managerSource struct {
	m *browser.Manager
}

func (s managerSource) AcquirePage() (Page, error) {
	page, err := s.m.AcquirePage()
	if err != nil {
		return nil, err
	}
	return page, nil
}

// NewBrowserSource adapts the browser manager to the Browser interface.
func NewBrowserSource(m *browser.Manager) Browser {
	return managerSource{m: m}
}

type Config struct {
	LoginURL  string
	GradesURL string

	// bound on each login decision point
	LoginTimeout time.Duration
	// report navigation retry budget
	NavMaxAttempts int
	NavRetryDelay  time.Duration
	NavTimeout     time.Duration
}

func (c *Config) setDefaults() {
	if c.LoginTimeout == 0 {
		c.LoginTimeout = time.Second * 20
	}
	if c.NavMaxAttempts == 0 {
		c.NavMaxAttempts = 3
	}
	if c.NavRetryDelay == 0 {
		c.NavRetryDelay = time.Second * 2
	}
	if c.NavTimeout == 0 {
		c.NavTimeout = time.Second * 30
	}
}

type Service struct {
	browser  Browser
	cache    *coursecache.Cache
	notifier notify.Notifier
	cfg      Config
}

func NewService(b Browser, cache *coursecache.Cache, notifier notify.Notifier, cfg Config) *Service {
	cfg.setDefaults()
	return &Service{
		browser:  b,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Authenticate runs the login flow and returns the session cookie set.
// The session is caller-held, the service never persists it.
func (s *Service) Authenticate(ctx context.Context, username, password string) (powercampus.Session, error) {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidArgument)
	}

	page, err := s.browser.AcquirePage()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire page")
		return nil, err
	}
	defer page.Close()

	session, err := powercampus.Login(ctx, page, powercampus.Credentials{
		Username: username,
		Password: password,
	}, powercampus.LoginOptions{
		URL:     s.cfg.LoginURL,
		Timeout: s.cfg.LoginTimeout,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return session, nil
}

// FetchResult is the outcome of one grade fetch. Courses always has
// the same length and order as the requested course list; unresolved
// entries carry a nil grade.
type FetchResult struct {
	GPA         float64              `json:"gpa"`
	CreditHours float64              `json:"creditHours"`
	Courses     []powercampus.Course `json:"courses"`
	NewGrades   []powercampus.Course `json:"newGrades"`
}

// FetchGrades restores the session in a fresh page, scrapes grades for
// every tracked course not already cached, persists anything new and
// returns the full aligned result set. Per-course failures degrade
// that course to unresolved, they never abort the batch.
func (s *Service) FetchGrades(ctx context.Context, session powercampus.Session, tracked []string) (FetchResult, error) {
	ctx, span := tracer.Start(ctx, "FetchGrades")
	defer span.End()

	if len(session) == 0 || len(tracked) == 0 {
		return FetchResult{}, fmt.Errorf("%w: cookies and tracked courses are required", ErrInvalidArgument)
	}
	span.SetAttributes(attribute.Int("tracked", len(tracked)))

	page, err := s.browser.AcquirePage()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire page")
		return FetchResult{}, err
	}
	defer page.Close()

	report, err := powercampus.OpenReport(ctx, page, session, powercampus.ReportOptions{
		URL:         s.cfg.GradesURL,
		MaxAttempts: s.cfg.NavMaxAttempts,
		RetryDelay:  s.cfg.NavRetryDelay,
		NavTimeout:  s.cfg.NavTimeout,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return FetchResult{}, err
	}

	newGrades := []powercampus.Course{}
	for _, code := range tracked {
		// cached courses are settled, never re-scraped
		if _, cached := s.cache.Get(code); cached {
			continue
		}

		course, resolved := report.Resolve(code)
		if !resolved {
			slog.InfoContext(ctx, "course not found in grade report", "course", code)
			continue
		}
		if s.cache.Put(course) {
			newGrades = append(newGrades, course)
			s.notifier.Notify(course)
		}
	}

	if len(newGrades) > 0 {
		err := s.cache.Flush()
		if err != nil {
			// a failed flush loses durability, not this response
			slog.ErrorContext(ctx, "failed to persist grade cache", "err", err)
			span.RecordError(err)
		}
	}

	courses := make([]powercampus.Course, len(tracked))
	for i, code := range tracked {
		if cached, ok := s.cache.Get(code); ok {
			courses[i] = cached
			continue
		}
		courses[i] = powercampus.Course{
			Code: code,
			Name: report.Name(code),
		}
	}

	span.SetAttributes(attribute.Int("new_grades", len(newGrades)))
	return FetchResult{
		GPA:         report.GPA,
		CreditHours: report.CreditHours,
		Courses:     courses,
		NewGrades:   newGrades,
	}, nil
}
