package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/models"
	"github.com/phillip/farewell-fund-go/store"
)

type BudgetAllocator struct {
	store store.Store
	authz *Resolver
	log   *zap.Logger
	now   func() time.Time
}

func NewBudgetAllocator(s store.Store, authz *Resolver, log *zap.Logger) *BudgetAllocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &BudgetAllocator{store: s, authz: authz, log: log, now: time.Now}
}

// EqualShare is ceil(total / members), so the shares never sum below total.
func EqualShare(total decimal.Decimal, members int) (decimal.Decimal, error) {
	if members <= 0 {
		return decimal.Zero, ErrNoMembers
	}
	q, r := total.QuoRem(decimal.NewFromInt(int64(members)), 0)
	if r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q, nil
}

// DistributeEqually assigns every member the same share, replacing any
// earlier manual assignment for the event.
func (b *BudgetAllocator) DistributeEqually(ctx context.Context, id *Identity, eventID string, total decimal.Decimal) ([]models.BudgetAssignment, error) {
	if err := b.authz.RequireAdmin(ctx, id, eventID); err != nil {
		return nil, err
	}
	if total.IsNegative() {
		return nil, invalid("total_budget", "total budget must not be negative")
	}
	if _, err := b.store.GetEvent(ctx, eventID); err != nil {
		return nil, fromStore(b.log, "load event", "event", err)
	}

	members, err := b.store.ListMembers(ctx, eventID)
	if err != nil {
		return nil, storageFailure(b.log, "list members", err)
	}
	share, err := EqualShare(total, len(members))
	if err != nil {
		return nil, err
	}

	now := b.now()
	rows := make([]models.BudgetAssignment, 0, len(members))
	for _, m := range members {
		rows = append(rows, models.BudgetAssignment{
			ID:             models.MemberKey(eventID, m.UserID),
			EventID:        eventID,
			MemberID:       m.UserID,
			AssignedAmount: share,
			UpdatedBy:      id.UserID,
			UpdatedAt:      now,
		})
	}
	if err := b.store.ReplaceBudgets(ctx, eventID, rows); err != nil {
		return nil, storageFailure(b.log, "replace budgets", err)
	}

	b.log.Info("budget distributed",
		zap.String("event_id", eventID),
		zap.String("actor_id", id.UserID),
		zap.Int("members", len(members)),
		zap.String("share", share.String()),
	)
	return rows, nil
}

// AssignIndividual upserts one member's share.
func (b *BudgetAllocator) AssignIndividual(ctx context.Context, id *Identity, eventID, memberID string, amount decimal.Decimal) (*models.BudgetAssignment, error) {
	if err := b.authz.RequireAdmin(ctx, id, eventID); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, invalid("amount", "amount must not be negative")
	}
	if _, err := b.store.GetMember(ctx, eventID, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("member")
		}
		return nil, storageFailure(b.log, "load member", err)
	}

	row := &models.BudgetAssignment{
		EventID:        eventID,
		MemberID:       memberID,
		AssignedAmount: amount,
		UpdatedBy:      id.UserID,
		UpdatedAt:      b.now(),
	}
	if err := b.store.UpsertBudget(ctx, row); err != nil {
		return nil, storageFailure(b.log, "upsert budget", err)
	}
	return row, nil
}

func (b *BudgetAllocator) List(ctx context.Context, id *Identity, eventID string) ([]models.BudgetAssignment, error) {
	if err := b.authz.RequireAdmin(ctx, id, eventID); err != nil {
		return nil, err
	}
	rows, err := b.store.ListBudgets(ctx, eventID)
	if err != nil {
		return nil, storageFailure(b.log, "list budgets", err)
	}
	return rows, nil
}
