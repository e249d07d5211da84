package booking

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/physiobook/physiobook/services/booking-service/internal/model"
)

var (
	phonePattern = regexp.MustCompile(`^(\+62|62|0)8[1-9][0-9]{7,10}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{4}$`)
)

// NormalizePhone strips every whitespace rune.
func NormalizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

func ValidPhone(raw string) bool {
	return phonePattern.MatchString(NormalizePhone(raw))
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// ValidateForm trims the form, normalizes the phone number and reports every
// failing field at once.
func ValidateForm(form model.RegistrationForm) (model.RegistrationForm, error) {
	out := model.RegistrationForm{
		SlotID:       strings.TrimSpace(form.SlotID),
		FullName:     strings.TrimSpace(form.FullName),
		NationalID:   strings.TrimSpace(form.NationalID),
		Phone:        NormalizePhone(form.Phone),
		DepartmentID: strings.TrimSpace(form.DepartmentID),
		Complaint:    strings.TrimSpace(form.Complaint),
	}

	fields := map[string]string{}
	required := map[string]string{
		"slot_id":       out.SlotID,
		"full_name":     out.FullName,
		"national_id":   out.NationalID,
		"phone":         out.Phone,
		"department_id": out.DepartmentID,
		"complaint":     out.Complaint,
	}
	for name, v := range required {
		if v == "" {
			fields[name] = "required"
		}
	}
	if _, missing := fields["phone"]; !missing && !phonePattern.MatchString(out.Phone) {
		fields["phone"] = "invalid phone number"
	}
	for name, id := range map[string]string{"slot_id": out.SlotID, "department_id": out.DepartmentID} {
		if _, missing := fields[name]; !missing && uuid.Validate(id) != nil {
			fields[name] = "invalid id"
		}
	}

	if len(fields) > 0 {
		return model.RegistrationForm{}, &ValidationError{Fields: fields}
	}
	return out, nil
}
