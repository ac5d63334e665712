// Package store holds the persistence contracts for contributions, events,
// memberships and budget assignments, with MongoDB and in-memory backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phillip/farewell-fund-go/models"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrStatusConflict = errors.New("store: status conflict")
)

// StatusConflictError is returned when a conditional write found the row in
// a state it did not expect. Current is what the row actually held.
type StatusConflictError struct {
	ID            string
	Current       models.ContributionStatus
	CurrentRefund models.RefundStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("store: contribution %s is %s (refund %s)", e.ID, e.Current, e.CurrentRefund)
}

func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

// ContributionFilter narrows ListContributions. Zero fields match everything.
type ContributionFilter struct {
	EventID       string
	ContributorID string
	Statuses      []models.ContributionStatus
}

// Transition is a compare-and-set on a contribution's primary status.
type Transition struct {
	ID         string
	From       []models.ContributionStatus
	To         models.ContributionStatus
	ActorID    string
	PaymentRef string
	Notes      string
	At         time.Time
}

type ContributionStore interface {
	InsertContribution(ctx context.Context, c *models.Contribution) error
	GetContribution(ctx context.Context, id string) (*models.Contribution, error)
	// ListContributions returns matching rows newest first.
	ListContributions(ctx context.Context, f ContributionFilter) ([]models.Contribution, error)
	TransitionStatus(ctx context.Context, t Transition) (*models.Contribution, error)
	// ApproveAndCredit moves id from one of from to approved and credits the
	// owning event's ledger by the contribution amount as a single unit. When
	// the row is not in from, nothing is written.
	ApproveAndCredit(ctx context.Context, id string, from []models.ContributionStatus, actorID string, at time.Time) (*models.Contribution, error)
	// SetRefundStatus sets the refund overlay on an approved row whose current
	// refund status is one of from.
	SetRefundStatus(ctx context.Context, id string, from []models.RefundStatus, to models.RefundStatus, actorID string, at time.Time) (*models.Contribution, error)
}

type EventStore interface {
	InsertEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	UpdateFinancialSettings(ctx context.Context, id string, fs models.FinancialSettings, at time.Time) (*models.Event, error)
}

type MemberStore interface {
	UpsertMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, eventID, userID string) (*models.Member, error)
	ListMembers(ctx context.Context, eventID string) ([]models.Member, error)
}

type BudgetStore interface {
	UpsertBudget(ctx context.Context, b *models.BudgetAssignment) error
	// ReplaceBudgets drops every assignment of eventID and writes rows in its place.
	ReplaceBudgets(ctx context.Context, eventID string, rows []models.BudgetAssignment) error
	ListBudgets(ctx context.Context, eventID string) ([]models.BudgetAssignment, error)
}

// ChangeFeed streams row-level change notifications for the given tables.
// Subscribe blocks until ctx is done or the stream fails.
type ChangeFeed interface {
	Subscribe(ctx context.Context, fn func(models.Change), tables ...string) error
}

type Store interface {
	ContributionStore
	EventStore
	MemberStore
	BudgetStore
	ChangeFeed
}

func containsStatus(list []models.ContributionStatus, s models.ContributionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRefund(list []models.RefundStatus, s models.RefundStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
