// Package appointments owns the booked-appointment record produced when a
// conversation's payment completes, and its persistence.
package appointments

import (
	"fmt"
	"time"
)

// PaymentStatusCompleted is the only status a persisted appointment can
// carry: records exist only after a successful payment.
const PaymentStatusCompleted = "completed"

// Appointment is the record emitted once per successful payment.
type Appointment struct {
	ID            string    `json:"id"` // external payment identifier
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Symptom       string    `json:"symptom"`
	BookingDate   time.Time `json:"bookingDate"`
	PatientID     string    `json:"patientId"`
	PaymentStatus string    `json:"paymentStatus"`
}

// DerivePatientID builds the deterministic, time-derived patient
// identifier for a booking completed at the given instant.
func DerivePatientID(at time.Time) string {
	return fmt.Sprintf("PID-%d", at.UnixMilli())
}

// New assembles a completed appointment from the captured booking details
// and the gateway's payment identifier.
func New(paymentID, name, email, phone, symptom string, bookedAt time.Time) Appointment {
	return Appointment{
		ID:            paymentID,
		Name:          name,
		Email:         email,
		Phone:         phone,
		Symptom:       symptom,
		BookingDate:   bookedAt.UTC(),
		PatientID:     DerivePatientID(bookedAt),
		PaymentStatus: PaymentStatusCompleted,
	}
}
