package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ActionBookAppointment is the discriminant the assistant emits when all
// booking details have been collected.
const ActionBookAppointment = "BOOK_APPOINTMENT"

// BookingDetails are the four fields required together before any payment
// attempt.
type BookingDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Symptom string `json:"symptom"`
}

// Validate checks that all four fields are non-empty after trimming. No
// format validation is applied; email/phone syntax is deliberately not
// this layer's concern.
func (d BookingDetails) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", d.Name},
		{"email", d.Email},
		{"phone", d.Phone},
		{"symptom", d.Symptom},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("conversation: booking details missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type actionPayload struct {
	Action  string          `json:"action"`
	Details *BookingDetails `json:"details"`
}

// ExtractAction attempts to parse an assistant turn's final text as a
// booking action: a single raw JSON object with the booking discriminant
// and a details object, nothing else. Any parse or shape failure returns
// false — the same text slot legitimately carries ordinary prose, so
// failure here is silent by contract.
func ExtractAction(text string) (*BookingDetails, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var payload actionPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, false
	}
	// Anything after the object means the text was prose containing JSON,
	// not a bare action payload.
	if err := ensureEOF(dec); err != nil {
		return nil, false
	}
	if payload.Action != ActionBookAppointment || payload.Details == nil {
		return nil, false
	}
	return payload.Details, true
}

func ensureEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing content")
	}
	return nil
}
