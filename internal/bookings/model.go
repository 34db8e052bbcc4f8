package bookings

import (
	"strings"
	"time"
)

// BookingRequest is one test-drive submission, keyed by its idempotency
// request id.
type BookingRequest struct {
	RequestID        string    `json:"request_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	PhoneRaw         string    `json:"phone,omitempty"`
	PhoneE164        string    `json:"phone_e164,omitempty"`
	Vehicle          string    `json:"vehicle"`
	PreferredDate    string    `json:"preferred_date"`
	PreferredTime    string    `json:"preferred_time"`
	Location         string    `json:"location"`
	TimeFrame        string    `json:"time_frame,omitempty"`
	CurrentVehicle   string    `json:"current_vehicle,omitempty"`
	LeadScore        string    `json:"lead_score,omitempty"`
	NumericLeadScore int       `json:"numeric_lead_score"`
	ActionStatus     string    `json:"action_status,omitempty"`
	SalesNotes       string    `json:"sales_notes,omitempty"`
	EmailSubject     string    `json:"email_subject,omitempty"`
	EmailBody        string    `json:"email_body,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// IntakeRequest is the POST /webhook/testdrive payload.
type IntakeRequest struct {
	RequestID      string `json:"request_id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone_number"`
	Vehicle        string `json:"vehicle"`
	PreferredDate  string `json:"preferred_date"`
	PreferredTime  string `json:"preferred_time"`
	Location       string `json:"location"`
	TimeFrame      string `json:"time_frame"`
	CurrentVehicle string `json:"current_vehicle"`
}

// MissingFields lists the required fields absent from the payload.
func (r *IntakeRequest) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"full_name", r.FullName},
		{"email", r.Email},
		{"vehicle", r.Vehicle},
		{"preferred_date", r.PreferredDate},
		{"preferred_time", r.PreferredTime},
		{"location", r.Location},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// UpdateRequest is the POST /bookings/update payload. Pointer fields are
// applied only when present.
type UpdateRequest struct {
	RequestID        string     `json:"request_id"`
	ActionStatus     *string    `json:"action_status,omitempty"`
	SalesNotes       *string    `json:"sales_notes,omitempty"`
	NumericLeadScore *int       `json:"numeric_lead_score,omitempty"`
	LeadScore        *string    `json:"lead_score,omitempty"`
	FollowupDate     *time.Time `json:"followup_date,omitempty"`
}

// Empty reports whether the update carries no mutable field at all.
func (r *UpdateRequest) Empty() bool {
	return r.ActionStatus == nil && r.SalesNotes == nil &&
		r.NumericLeadScore == nil && r.LeadScore == nil && r.FollowupDate == nil
}
