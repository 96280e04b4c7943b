package powercampus

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gradewatch-backend/lib/browser"
	"gradewatch-backend/lib/retry"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// only rows of this subtype are authoritative for a course's grade,
// lab/tutorial rows for the same course are ignored
const primarySubtype = "Lecture"

// ReportPage is the slice of a browser page the report flow needs.
type ReportPage interface {
	SetCookies(ctx context.Context, cookies []browser.Cookie) error
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
}

type ReportOptions struct {
	URL string
	// navigation retry budget, fixed delay between attempts
	MaxAttempts int
	RetryDelay  time.Duration
	// cap on each individual navigation attempt
	NavTimeout time.Duration
}

// Report is one parsed snapshot of the grade report page. Rows are
// read from the DOM exactly once; name lookups and per-course
// resolution run against the snapshot.
type Report struct {
	GPA         float64
	CreditHours float64

	rows  []gradeRow
	names map[string]string
}

type gradeRow struct {
	// the raw course label, "CSCI101: Introduction to Computing"
	courseText string
	subtype    string
	grade      string
}

// OpenReport replays the session cookies into a borrowed page, loads
// the grade report through the retry executor and parses it. The
// caller owns the page and must close it.
func OpenReport(ctx context.Context, page ReportPage, session Session, opts ReportOptions) (*Report, error) {
	ctx, span := tracer.Start(ctx, "OpenReport")
	defer span.End()

	err := page.SetCookies(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to restore session cookies")
		return nil, err
	}

	// only the initial navigation is retried: DOM failures past this
	// point are meaningful, not transient
	_, err = retry.Do(ctx, opts.MaxAttempts, opts.RetryDelay, func(ctx context.Context) (struct{}, error) {
		navCtx, cancel := context.WithTimeout(ctx, opts.NavTimeout)
		defer cancel()
		return struct{}{}, page.Navigate(navCtx, opts.URL)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, ErrUpstreamUnreachable.Error())
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}

	location, err := page.Location(ctx)
	if err != nil {
		return nil, err
	}
	if isLoginPage(location) {
		span.SetStatus(codes.Error, ErrSessionExpired.Error())
		return nil, ErrSessionExpired
	}

	html, err := page.HTML(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read report markup")
		return nil, err
	}

	report, err := parseReport(html)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse report markup")
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(report.rows)))
	return report, nil
}

var courseLabelRegex = regexp.MustCompile(`^([\w/]+):\s*(.+)$`)

func parseReport(html string) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	report := &Report{
		GPA:         summaryValue(doc, "Overall"),
		CreditHours: summaryValue(doc, "Earned"),
		names:       map[string]string{},
	}

	// one pass over the table collects the rows and the code -> name
	// index so per-course resolution never rescans the DOM
	doc.Find("table#tblActivityGradesMidterm tbody tr").Each(func(_ int, tr *goquery.Selection) {
		courseText := strings.TrimSpace(tr.Find(`td[data-label="Course"] a span`).First().Text())
		if courseText == "" {
			return
		}
		report.rows = append(report.rows, gradeRow{
			courseText: courseText,
			subtype:    strings.TrimSpace(tr.Find(`td[data-label="Subtype"] span`).First().Text()),
			grade:      strings.TrimSpace(tr.Find(`td[data-label="Final Grade"] span`).First().Text()),
		})

		groups := courseLabelRegex.FindStringSubmatch(courseText)
		if groups == nil {
			return
		}
		code := strings.TrimSpace(groups[1])
		if _, seen := report.names[code]; !seen {
			report.names[code] = strings.TrimSpace(groups[2])
		}
	})

	return report, nil
}

// summaryValue reads the numeric headline of the grid item whose label
// contains the given text. A missing widget yields zero, it is not
// fatal to per-course extraction.
func summaryValue(doc *goquery.Document, label string) float64 {
	value := 0.0
	doc.Find("div.grid-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if !strings.Contains(item.Find("span").Text(), label) {
			return true
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(item.Find("h3").First().Text()), 64)
		if err == nil {
			value = parsed
		}
		return false
	})
	return value
}

// Resolve finds the grade for a course code: the first primary-subtype
// row whose label contains the code wins, later duplicates are never
// consulted. Returns false when no such row exists or the row carries
// no final grade yet.
func (r *Report) Resolve(code string) (Course, bool) {
	for _, row := range r.rows {
		if row.subtype != primarySubtype {
			continue
		}
		if !strings.Contains(row.courseText, code) {
			continue
		}
		if row.grade == "" {
			return Course{}, false
		}
		grade := row.grade
		return Course{
			Code:  code,
			Name:  r.displayName(code, row.courseText),
			Grade: &grade,
		}, true
	}
	return Course{}, false
}

// Name returns the display name collected for a course code, or a
// synthesized default when the report never mentioned it.
func (r *Report) Name(code string) string {
	if name, ok := r.names[code]; ok {
		return name
	}
	return "Course " + code
}

func (r *Report) displayName(code, courseText string) string {
	if name, ok := r.names[code]; ok {
		return name
	}
	// containment matches can hit a label whose parsed code differs
	// from the requested one, fall back to the matched label itself
	if _, after, found := strings.Cut(courseText, ":"); found && strings.TrimSpace(after) != "" {
		return strings.TrimSpace(after)
	}
	return "Course " + code
}
