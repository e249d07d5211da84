// Package dispatch turns domain events into patient and staff notifications.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/physiobook/physiobook/libs/kafkax"
	"github.com/physiobook/physiobook/services/notification-service/internal/email"
	"github.com/physiobook/physiobook/services/notification-service/internal/sms"
	"github.com/physiobook/physiobook/services/notification-service/internal/storage"
	"github.com/physiobook/physiobook/services/notification-service/internal/templates"
	"github.com/segmentio/kafka-go"
)

const (
	TopicRegistrationCreated = "booking.registration.created.v1"
	TopicPasswordReset       = "auth.password_reset.requested.v1"
	TopicReconcileFlagged    = "clinic.reconciliation.flagged.v1"
)

var Topics = []string{TopicRegistrationCreated, TopicPasswordReset, TopicReconcileFlagged}

var errSimulated = errors.New("simulated failure")

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

type Recorder interface {
	Record(ctx context.Context, n storage.Notification) error
}

type Config struct {
	ClinicName  string
	OpsEmail    string
	CountryCode string
	// FailSuffix simulates delivery failures for recipients ending with it.
	FailSuffix string
}

type Dispatcher struct {
	email  email.Sender
	sms    sms.Sender
	rec    Recorder
	logger *slog.Logger
	cfg    Config
}

func New(emailSender email.Sender, smsSender sms.Sender, rec Recorder, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.ClinicName == "" {
		cfg.ClinicName = "PhysioBook"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "62"
	}
	return &Dispatcher{email: emailSender, sms: smsSender, rec: rec, logger: logger, cfg: cfg}
}

type registrationCreated struct {
	RegistrationID string `json:"registration_id"`
	DepartmentName string `json:"department_name"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	SlotDate       string `json:"slot_date"`
	SlotHour       int    `json:"slot_hour"`
}

type resetRequested struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

type incidentFlagged struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Detail       string    `json:"detail"`
	CreatedAt    time.Time `json:"created_at"`
}

// Handle is a consumer.Handler. Malformed events are logged and dropped;
// only persistence errors are returned so the consumer can report them.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	switch meta.EventType {
	case TopicRegistrationCreated:
		return d.bookingConfirmation(ctx, meta.EventID, msg.Value)
	case TopicPasswordReset:
		return d.passwordReset(ctx, meta.EventID, msg.Value)
	case TopicReconcileFlagged:
		return d.reconcileAlert(ctx, meta.EventID, msg.Value)
	default:
		d.logger.WarnContext(ctx, "unhandled event type", "event_type", meta.EventType)
		return nil
	}
}

func (d *Dispatcher) bookingConfirmation(ctx context.Context, eventID string, raw []byte) error {
	var p registrationCreated
	if err := json.Unmarshal(raw, &p); err != nil {
		d.logger.ErrorContext(ctx, "invalid registration payload", "err", err)
		return nil
	}
	phone := sms.NormalizePhone(p.Phone, d.cfg.CountryCode)
	if phone == "" || p.RegistrationID == "" {
		d.logger.ErrorContext(ctx, "registration event missing phone or id", "event_id", eventID)
		return nil
	}
	msg, err := templates.RenderBooking(templates.Booking{
		ClinicName:     d.cfg.ClinicName,
		FullName:       p.FullName,
		DepartmentName: p.DepartmentName,
		SlotDate:       p.SlotDate,
		SlotHour:       p.SlotHour,
	})
	if err != nil {
		return err
	}
	return d.deliver(ctx, eventID, ChannelSMS, phone, msg)
}

func (d *Dispatcher) passwordReset(ctx context.Context, eventID string, raw []byte) error {
	var p resetRequested
	if err := json.Unmarshal(raw, &p); err != nil {
		d.logger.ErrorContext(ctx, "invalid password reset payload", "err", err)
		return nil
	}
	if p.Email == "" || p.Link == "" {
		d.logger.ErrorContext(ctx, "password reset event missing email or link", "event_id", eventID)
		return nil
	}
	msg, err := templates.RenderReset(templates.Reset{
		ClinicName: d.cfg.ClinicName,
		FullName:   p.FullName,
		Link:       p.Link,
		ExpiresAt:  p.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return d.deliver(ctx, eventID, ChannelEmail, p.Email, msg)
}

func (d *Dispatcher) reconcileAlert(ctx context.Context, eventID string, raw []byte) error {
	if d.cfg.OpsEmail == "" {
		d.logger.InfoContext(ctx, "OPS_EMAIL not set, skipping reconciliation alert", "event_id", eventID)
		return nil
	}
	var p incidentFlagged
	if err := json.Unmarshal(raw, &p); err != nil {
		d.logger.ErrorContext(ctx, "invalid incident payload", "err", err)
		return nil
	}
	msg, err := templates.RenderAlert(templates.Alert{
		ClinicName:   d.cfg.ClinicName,
		IncidentID:   p.ID,
		Kind:         p.Kind,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		Detail:       p.Detail,
		CreatedAt:    p.CreatedAt,
	})
	if err != nil {
		return err
	}
	return d.deliver(ctx, eventID, ChannelEmail, d.cfg.OpsEmail, msg)
}

func (d *Dispatcher) deliver(ctx context.Context, eventID, channel, recipient string, msg templates.Message) error {
	n := storage.Notification{
		EventID:   eventID,
		Channel:   channel,
		Recipient: recipient,
		Template:  msg.Template,
		Status:    storage.StatusSent,
	}

	var err error
	switch {
	case d.cfg.FailSuffix != "" && strings.HasSuffix(recipient, d.cfg.FailSuffix):
		err = errSimulated
	case channel == ChannelSMS:
		err = d.sms.Send(ctx, recipient, msg.Body)
		n.ProviderID = d.sms.ProviderID()
	default:
		err = d.email.Send(ctx, recipient, msg.Subject, msg.Body)
		n.ProviderID = "smtp"
	}
	if err != nil {
		n.Status = storage.StatusFailed
		n.Error = err.Error()
		n.ProviderID = ""
		d.logger.ErrorContext(ctx, "notification delivery failed", "err", err, "channel", channel, "template", msg.Template)
	}

	if err := d.rec.Record(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "failed to persist notification", "err", err)
		return err
	}
	d.logger.InfoContext(ctx, "notification processed", "event_id", eventID, "channel", channel, "template", msg.Template, "status", n.Status)
	return nil
}
