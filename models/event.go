package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MethodConfig carries the payee details shown to contributors for one payment method.
type MethodConfig struct {
	Enabled       bool   `bson:"enabled" json:"enabled"`
	UPIID         string `bson:"upi_id,omitempty" json:"upi_id,omitempty"`
	AccountName   string `bson:"account_name,omitempty" json:"account_name,omitempty"`
	AccountNumber string `bson:"account_number,omitempty" json:"account_number,omitempty"`
	IFSC          string `bson:"ifsc,omitempty" json:"ifsc,omitempty"`
	Instructions  string `bson:"instructions,omitempty" json:"instructions,omitempty"`
}

type FinancialSettings struct {
	TargetAmount      decimal.Decimal                `bson:"target_amount" json:"target_amount"`
	AcceptingPayments bool                           `bson:"accepting_payments" json:"accepting_payments"`
	MaintenanceMode   bool                           `bson:"maintenance_mode" json:"maintenance_mode"`
	PaymentMethods    map[PaymentMethod]MethodConfig `bson:"payment_methods,omitempty" json:"payment_methods,omitempty"`
}

// MethodEnabled reports whether contributors may use m. An empty method
// config means every method is open.
func (f FinancialSettings) MethodEnabled(m PaymentMethod) bool {
	if len(f.PaymentMethods) == 0 {
		return true
	}
	cfg, ok := f.PaymentMethods[m]
	return ok && cfg.Enabled
}

type Event struct {
	ID            string            `bson:"_id" json:"id"`
	OwnerID       string            `bson:"owner_id" json:"owner_id"`
	Title         string            `bson:"title" json:"title"`
	Description   string            `bson:"description,omitempty" json:"description,omitempty"`
	Financial     FinancialSettings `bson:"financial" json:"financial"`
	LedgerTotal   decimal.Decimal   `bson:"ledger_total" json:"ledger_total"`
	ApprovedCount int64             `bson:"approved_count" json:"approved_count"`
	Status        string            `bson:"status" json:"status"` // ACTIVE, CLOSED
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
}
