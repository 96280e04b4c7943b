// Package notify emits out-of-band alerts for newly resolved grades.
// Notifications are fire-and-forget: they run detached from the scrape
// and their failures are only logged.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	"gradewatch-backend/lib/restyutil"
	"gradewatch-backend/lib/scrapers/powercampus"

	"github.com/gen2brain/beeep"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

type Notifier interface {
	Notify(course powercampus.Course)
}

func message(course powercampus.Course) string {
	grade := ""
	if course.Grade != nil {
		grade = *course.Grade
	}
	return fmt.Sprintf("%s: %s", course.Code, grade)
}

// Desktop shows a system notification for each new grade.
type Desktop struct {
	Icon string
}

func (d Desktop) Notify(course powercampus.Course) {
	go func() {
		err := beeep.Alert("New Grade Available!", message(course), d.Icon)
		if err != nil {
			slog.Warn("failed to send desktop notification", "course", course.Code, "err", err)
		}
	}()
}

// Webhook posts each new grade to an HTTP endpoint, e.g. an ntfy
// topic, for phones and machines without a desktop session.
type Webhook struct {
	client *resty.Client
	url    string
}

func NewWebhook(url string) *Webhook {
	client := resty.New()
	client.SetTimeout(time.Second * 10)
	restyutil.InstrumentClient(client, otel.Tracer("lib/notify"))
	return &Webhook{client: client, url: url}
}

func (w *Webhook) Notify(course powercampus.Course) {
	go func() {
		_, err := w.client.R().
			SetHeader("Title", "New Grade Available!").
			SetBody(message(course)).
			Post(w.url)
		if err != nil {
			slog.Warn("failed to post grade webhook", "course", course.Code, "err", err)
		}
	}()
}

// Multi fans a notification out to every configured notifier.
type Multi []Notifier

func (m Multi) Notify(course powercampus.Course) {
	for _, n := range m {
		n.Notify(course)
	}
}
