package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestStatus represents a state in the signature request lifecycle.
type RequestStatus string

// All lifecycle states. EXPIRED is a terminal hook for an external sweep that
// retires stale pending requests; nothing in the service drives it directly.
const (
	StatusPending   RequestStatus = "PENDING"
	StatusSigned    RequestStatus = "SIGNED"
	StatusCompleted RequestStatus = "COMPLETED"
	StatusExpired   RequestStatus = "EXPIRED"
)

// Valid reports whether the status is one of the supported lifecycle states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSigned, StatusCompleted, StatusExpired:
		return true
	default:
		return false
	}
}

// Service is a provider's standing cosigning offer. Fees are denominated in
// satoshis. A service is sold to at most one client at a time; once purchased
// only the purchase-state flag may change.
type Service struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProviderID        uuid.UUID `gorm:"type:uuid;index" json:"provider_id"`
	Title             string    `gorm:"size:128" json:"title"`
	SetupFee          int64     `gorm:"not null" json:"setup_fee"`
	PerSignatureFee   int64     `gorm:"not null" json:"per_signature_fee"`
	MinTimeDelayHours int       `gorm:"not null" json:"min_time_delay_hours"`
	IsPurchased       bool      `gorm:"index" json:"is_purchased"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ServicePurchase binds one client to one service. It is created pending at
// invoice time and promoted to active only when the setup payment settles.
type ServicePurchase struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_purchase_client_service" json:"client_id"`
	ServiceID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_purchase_client_service" json:"service_id"`
	PaymentHash string    `gorm:"size:64;index" json:"payment_hash"`
	IsActive    bool      `gorm:"index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SignatureRequest is the unit of work: one PSBT awaiting a provider
// countersignature. SignatureFee snapshots the service's per-signature fee at
// creation and is never recomputed; likewise UnlocksAt is fixed at creation
// from the service's configured delay.
type SignatureRequest struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID         uuid.UUID     `gorm:"type:uuid;index" json:"client_id"`
	ServiceID        uuid.UUID     `gorm:"type:uuid;index" json:"service_id"`
	PaymentHash      string        `gorm:"size:64;uniqueIndex" json:"payment_hash"`
	Psbt             string        `gorm:"type:text" json:"psbt"`
	PsbtHash         string        `gorm:"size:64;index" json:"psbt_hash"`
	SignatureFee     int64         `gorm:"not null" json:"signature_fee"`
	PaymentConfirmed bool          `json:"payment_confirmed"`
	Status           RequestStatus `gorm:"size:16;index" json:"status"`
	SignedPsbt       string        `gorm:"type:text" json:"signed_psbt,omitempty"`
	SignedAt         *time.Time    `json:"signed_at,omitempty"`
	UnlocksAt        time.Time     `json:"unlocks_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Event is the audit trail structure. Every state transition writes one event
// in the same transaction that performs the transition.
type Event struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RequestID *uuid.UUID `gorm:"type:uuid;index"`
	ActorID   uuid.UUID  `gorm:"type:uuid;index"`
	Action    string     `gorm:"size:64"`
	Details   string     `gorm:"type:text"`
	CreatedAt time.Time
}

// IdempotencyKey stores request idempotency metadata.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Service{},
		&ServicePurchase{},
		&SignatureRequest{},
		&Event{},
		&IdempotencyKey{},
	)
}
