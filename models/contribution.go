package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContributionStatus string

const (
	StatusPending                      ContributionStatus = "pending"
	StatusVerified                     ContributionStatus = "verified"
	StatusPaidPendingAdminVerification ContributionStatus = "paid_pending_admin_verification"
	StatusApproved                     ContributionStatus = "approved"
	StatusRejected                     ContributionStatus = "rejected"
)

// IsTerminal reports whether no further primary transition is possible.
func (s ContributionStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type PaymentMethod string

const (
	MethodUPI          PaymentMethod = "upi"
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodGateway      PaymentMethod = "gateway"
)

var PaymentMethods = []PaymentMethod{MethodUPI, MethodCash, MethodBankTransfer, MethodGateway}

func (m PaymentMethod) Valid() bool {
	for _, pm := range PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}

type RefundStatus string

const (
	RefundNone    RefundStatus = "none"
	RefundPartial RefundStatus = "partial"
	RefundFull    RefundStatus = "full"
)

type ContributionMetadata struct {
	AdminNotes  string `bson:"admin_notes,omitempty" json:"admin_notes,omitempty"`
	ManualEntry bool   `bson:"manual_entry" json:"manual_entry"`
	RecordedBy  string `bson:"recorded_by,omitempty" json:"recorded_by,omitempty"`
}

type Contribution struct {
	ID            string               `bson:"_id" json:"id"`
	EventID       string               `bson:"event_id" json:"event_id"`
	ContributorID string               `bson:"contributor_id" json:"contributor_id"`
	Amount        decimal.Decimal      `bson:"amount" json:"amount"`
	Method        PaymentMethod        `bson:"method" json:"method"`
	PaymentRef    string               `bson:"transaction_reference,omitempty" json:"transaction_reference,omitempty"`
	ReceiptURL    string               `bson:"receipt_url,omitempty" json:"receipt_url,omitempty"`
	Status        ContributionStatus   `bson:"status" json:"status"`
	RefundStatus  RefundStatus         `bson:"refund_status" json:"refund_status"`
	Metadata      ContributionMetadata `bson:"metadata" json:"metadata"`
	Version       int64                `bson:"version" json:"-"`
	ProcessedBy   string               `bson:"processed_by,omitempty" json:"processed_by,omitempty"`
	VerifiedAt    *time.Time           `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
	PaidAt        *time.Time           `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	ApprovedAt    *time.Time           `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedAt    *time.Time           `bson:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RefundedAt    *time.Time           `bson:"refunded_at,omitempty" json:"refunded_at,omitempty"`
	CreatedAt     time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at" json:"updated_at"`
}
