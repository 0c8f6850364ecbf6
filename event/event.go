package event

import (
	"time"

	"github.com/Danservfinn/churnsaver-sub010/id"
)

// Type names the webhook event kinds the commerce platform delivers.
// The set is open: unknown types are still recorded for idempotency,
// they just don't map to a registered job.
type Type string

const (
	TypePaymentFailed         Type = "payment_failed"
	TypePaymentSucceeded      Type = "payment_succeeded"
	TypeMembershipWentValid   Type = "membership_went_valid"
	TypeMembershipWentInvalid Type = "membership_went_invalid"
)

// InboundEvent is one webhook delivery recorded exactly once.
//
// OriginID is the event identifier assigned by the platform and is the
// natural idempotency key: a second insert with the same OriginID is a
// no-op, never an error surfaced to the caller. Only the fields needed
// for later attribution are stored; raw-payload retention is a policy
// decision made outside the core.
type InboundEvent struct {
	ID          id.EventID `json:"id"`
	OriginID    string     `json:"origin_id"`
	Type        Type       `json:"type"`
	TenantID    string     `json:"tenant_id"`
	Payload     []byte     `json:"payload,omitempty"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
