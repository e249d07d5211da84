package templates

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

const (
	BookingConfirmation = "booking_confirmation"
	PasswordReset       = "password_reset"
	ReconcileAlert      = "reconcile_alert"
)

type Message struct {
	Template string
	Subject  string
	Body     string
}

type Booking struct {
	ClinicName     string
	FullName       string
	DepartmentName string
	SlotDate       string
	SlotHour       int
	AccessCode     string
}

type Reset struct {
	ClinicName string
	FullName   string
	Link       string
	ExpiresAt  time.Time
}

type Alert struct {
	ClinicName   string
	IncidentID   string
	Kind         string
	ResourceType string
	ResourceID   string
	Detail       string
	CreatedAt    time.Time
}

var funcs = template.FuncMap{
	"hour": func(h int) string { return fmt.Sprintf("%02d:00", h) },
	"ts":   func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 UTC") },
}

var (
	bookingSMS = template.Must(template.New(BookingConfirmation).Funcs(funcs).Parse(
		`{{.ClinicName}}: Hi {{.FullName}}, your physiotherapy visit at {{.DepartmentName}} is booked for {{.SlotDate}} {{hour .SlotHour}}. Please arrive 15 minutes early.`))

	resetBody = template.Must(template.New(PasswordReset).Funcs(funcs).Parse(`Hello {{.FullName}},

We received a request to reset your {{.ClinicName}} password.
Open the link below to choose a new one:

{{.Link}}

The link expires at {{ts .ExpiresAt}}. If you did not ask for this, ignore this email.
`))

	alertBody = template.Must(template.New(ReconcileAlert).Funcs(funcs).Parse(`Reconciliation flagged an inconsistency.

Incident:  {{.IncidentID}}
Kind:      {{.Kind}}
Resource:  {{.ResourceType}} {{.ResourceID}}
Detected:  {{ts .CreatedAt}}

{{.Detail}}
`))
)

func RenderBooking(b Booking) (Message, error) {
	body, err := render(bookingSMS, b)
	return Message{Template: BookingConfirmation, Body: body}, err
}

func RenderReset(r Reset) (Message, error) {
	body, err := render(resetBody, r)
	return Message{
		Template: PasswordReset,
		Subject:  r.ClinicName + " password reset",
		Body:     body,
	}, err
}

func RenderAlert(a Alert) (Message, error) {
	body, err := render(alertBody, a)
	return Message{
		Template: ReconcileAlert,
		Subject:  fmt.Sprintf("[%s] reconciliation: %s %s", a.ClinicName, a.ResourceType, a.ResourceID),
		Body:     body,
	}, err
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
