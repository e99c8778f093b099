package domain

import "time"

// EventType names an outbound notification event.
type EventType string

const (
	EventSignup    EventType = "waitlist.signup"
	EventDuplicate EventType = "waitlist.duplicate"
	EventConfirmed EventType = "waitlist.confirmed"
	EventReferral  EventType = "waitlist.referral"
)

// Event is published to webhooks and the event queue. Data carries the
// event-specific fields and never includes tokens.
type Event struct {
	Type       EventType      `json:"event"`
	DeliveryID string         `json:"deliveryId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data"`
}

// ConfirmationEmail is everything the mailer needs to render the
// confirmation message.
type ConfirmationEmail struct {
	Email        string
	Name         string
	Position     int
	ReferralCode string
	ConfirmURL   string
	Resend       bool
}
