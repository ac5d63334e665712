package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BudgetAssignment struct {
	ID             string          `bson:"_id" json:"-"`
	EventID        string          `bson:"event_id" json:"event_id"`
	MemberID       string          `bson:"member_id" json:"member_id"`
	AssignedAmount decimal.Decimal `bson:"assigned_amount" json:"assigned_amount"`
	UpdatedBy      string          `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updated_at"`
}
