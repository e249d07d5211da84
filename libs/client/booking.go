package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

const (
	StageTokenHeader        = "X-Stage-Token"
	ConfirmationTokenHeader = "X-Confirmation-Token"
)

// ValidateCode checks code without consuming it and stages it for Register.
func (c *Client) ValidateCode(ctx context.Context, code string) (StageTicket, error) {
	var out StageTicket
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/public/codes/validate",
		body:   map[string]string{"code": code},
	}, &out)
	if errors.Is(err, ErrNotFound) {
		return StageTicket{}, ErrInvalidCode
	}
	return out, err
}

// AvailableSlots lists unbooked future slots grouped by day. An empty date lists every day.
func (c *Client) AvailableSlots(ctx context.Context, date string) ([]SlotDay, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	var out struct {
		Days []SlotDay `json:"days"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/public/slots", query: q}, &out)
	return out.Days, err
}

func (c *Client) ActiveDepartments(ctx context.Context) ([]Department, error) {
	var out struct {
		Departments []Department `json:"departments"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/public/departments"}, &out)
	return out.Departments, err
}

// Register submits the booking form for the code staged under stageToken.
func (c *Client) Register(ctx context.Context, stageToken string, form RegistrationForm) (Booking, error) {
	var out Booking
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/api/v1/public/registrations",
		body:    form,
		headers: map[string]string{StageTokenHeader: stageToken},
	}, &out)
	if err != nil {
		return Booking{}, bookingError(err)
	}
	return out, nil
}

// Confirmation returns the staged registration once.
func (c *Client) Confirmation(ctx context.Context, token string) (Registration, error) {
	var out struct {
		Registration Registration `json:"registration"`
	}
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/api/v1/public/registrations/confirmation",
		headers: map[string]string{ConfirmationTokenHeader: token},
	}, &out)
	return out.Registration, err
}

func bookingError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusConflict:
		return ErrSlotAlreadyTaken
	case http.StatusUnprocessableEntity:
		return &ValidationError{Fields: fieldMap(apiErr.Body)}
	case http.StatusInternalServerError:
		if slotID := stringField(apiErr.Body, "slot_id"); slotID != "" {
			return &BookingFailure{
				Message: apiErr.Message,
				SlotID:  slotID,
				CodeID:  stringField(apiErr.Body, "code_id"),
			}
		}
	}
	return err
}

func fieldMap(body map[string]any) map[string]string {
	out := map[string]string{}
	raw, _ := body["fields"].(map[string]any)
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
