package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aoemotors/driveflow/pkg/logging"
)

// BookingNotice carries the details of a new test-drive booking that both
// the customer confirmation and the internal sales alert are built from.
type BookingNotice struct {
	RequestID     string
	FullName      string
	Email         string
	Phone         string
	Vehicle       string
	VehicleType   string
	Powertrain    string
	Location      string
	PreferredDate string
	PreferredTime string
	TimeFrame     string
	LeadLabel     string
	LeadScore     int

	// Drafted customer email. When Subject is empty a fallback is used.
	Subject string
	Body    string
}

// Service sends booking notifications to customers and the sales team.
type Service struct {
	email     EmailSender
	teamEmail string
	logger    *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, teamEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:     email,
		teamEmail: teamEmail,
		logger:    logger,
	}
}

// NotifyCustomer sends the booking confirmation to the customer. The drafted
// subject and body are used when present, otherwise a plain fallback.
func (s *Service) NotifyCustomer(ctx context.Context, n BookingNotice) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping customer email")
		return nil
	}
	if n.Email == "" {
		return fmt.Errorf("notify: booking %s has no customer email", n.RequestID)
	}

	subject := n.Subject
	body := n.Body
	if subject == "" {
		subject = fmt.Sprintf("Your %s test drive is booked", n.Vehicle)
	}
	if body == "" {
		body = fmt.Sprintf(
			"Hi %s,\n\nYour test drive of the %s is confirmed for %s at %s (%s).\n\nSee you soon,\nAOE Motors",
			firstName(n.FullName), n.Vehicle, n.PreferredDate, n.PreferredTime, n.Location,
		)
	}

	if err := s.email.Send(ctx, EmailMessage{
		To:      n.Email,
		ToName:  n.FullName,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notify: customer email: %w", err)
	}
	s.logger.Info("customer confirmation sent", "request_id", n.RequestID, "to", n.Email)
	return nil
}

// NotifyTeam alerts the sales team about a new booking with its lead
// qualification so hot leads get a fast follow-up.
func (s *Service) NotifyTeam(ctx context.Context, n BookingNotice) error {
	if s.email == nil || s.teamEmail == "" {
		s.logger.Debug("notify: team email not configured, skipping sales alert")
		return nil
	}

	subject := fmt.Sprintf("[%s] New test drive: %s — %s", n.LeadLabel, n.Vehicle, n.FullName)
	body := teamAlertBody(n)

	if err := s.email.Send(ctx, EmailMessage{
		To:      s.teamEmail,
		ToName:  "AOE Sales",
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notify: team email: %w", err)
	}
	s.logger.Info("sales alert sent", "request_id", n.RequestID, "lead_label", n.LeadLabel)
	return nil
}

func teamAlertBody(n BookingNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New test drive booking %s\n\n", n.RequestID)
	fmt.Fprintf(&b, "Customer:  %s <%s>\n", n.FullName, n.Email)
	if n.Phone != "" {
		fmt.Fprintf(&b, "Phone:     %s\n", n.Phone)
	}
	fmt.Fprintf(&b, "Vehicle:   %s", n.Vehicle)
	if n.VehicleType != "" {
		fmt.Fprintf(&b, " (%s, %s)", n.VehicleType, n.Powertrain)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "When:      %s %s at %s\n", n.PreferredDate, n.PreferredTime, n.Location)
	if n.TimeFrame != "" {
		fmt.Fprintf(&b, "Timeframe: %s\n", n.TimeFrame)
	}
	fmt.Fprintf(&b, "Lead:      %s (score %d)\n", n.LeadLabel, n.LeadScore)
	return b.String()
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	if full == "" {
		return "there"
	}
	return full
}
