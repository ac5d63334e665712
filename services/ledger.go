package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/cache"
	"github.com/phillip/farewell-fund-go/models"
	"github.com/phillip/farewell-fund-go/store"
)

// FinancialSnapshot is a derived, cacheable view of an event's contributions.
// Collected counts verified amounts provisionally; LedgerTotal is the
// credited sum of approvals and is the accounting figure.
type FinancialSnapshot struct {
	EventID          string          `json:"event_id"`
	Collected        decimal.Decimal `json:"collected"`
	ApprovedSum      decimal.Decimal `json:"approved_sum"`
	VerifiedSum      decimal.Decimal `json:"verified_sum"`
	ContributorCount int             `json:"contributor_count"`
	PendingCount     int             `json:"pending_count"`
	RefundedCount    int             `json:"refunded_count"`
	TargetAmount     decimal.Decimal `json:"target_amount"`
	LedgerTotal      decimal.Decimal `json:"ledger_total"`
	ProgressPercent  decimal.Decimal `json:"progress_percent"`
	ComputedAt       time.Time       `json:"computed_at"`
}

var hundred = decimal.NewFromInt(100)

type LedgerAggregator struct {
	store store.Store
	authz *Resolver
	memo  *cache.Memo[FinancialSnapshot]
	log   *zap.Logger
	now   func() time.Time
}

func NewLedgerAggregator(s store.Store, authz *Resolver, backend cache.Backend, ttl time.Duration, log *zap.Logger) *LedgerAggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerAggregator{
		store: s,
		authz: authz,
		memo:  cache.NewMemo[FinancialSnapshot](backend, "snapshot", ttl, log),
		log:   log,
		now:   time.Now,
	}
}

// Snapshot returns the possibly cached snapshot for eventID.
func (a *LedgerAggregator) Snapshot(ctx context.Context, id *Identity, eventID string) (FinancialSnapshot, error) {
	if err := a.authz.RequireAdmin(ctx, id, eventID); err != nil {
		return FinancialSnapshot{}, err
	}
	snap, err := a.memo.Get(ctx, eventID, func(ctx context.Context) (FinancialSnapshot, error) {
		return a.Compute(ctx, eventID)
	})
	if err != nil {
		return FinancialSnapshot{}, fromStore(a.log, "compute snapshot", "event", err)
	}
	return snap, nil
}

// Compute derives the snapshot from persisted rows, bypassing the cache.
func (a *LedgerAggregator) Compute(ctx context.Context, eventID string) (FinancialSnapshot, error) {
	event, err := a.store.GetEvent(ctx, eventID)
	if err != nil {
		return FinancialSnapshot{}, err
	}
	rows, err := a.store.ListContributions(ctx, store.ContributionFilter{EventID: eventID})
	if err != nil {
		return FinancialSnapshot{}, err
	}

	snap := FinancialSnapshot{
		EventID:      eventID,
		TargetAmount: event.Financial.TargetAmount,
		LedgerTotal:  event.LedgerTotal,
		ComputedAt:   a.now(),
	}
	contributors := map[string]struct{}{}
	for _, c := range rows {
		switch c.Status {
		case models.StatusApproved:
			snap.ApprovedSum = snap.ApprovedSum.Add(c.Amount)
			contributors[c.ContributorID] = struct{}{}
			if c.RefundStatus == models.RefundPartial || c.RefundStatus == models.RefundFull {
				snap.RefundedCount++
			}
		case models.StatusVerified:
			snap.VerifiedSum = snap.VerifiedSum.Add(c.Amount)
		case models.StatusPending:
			snap.PendingCount++
		}
	}
	snap.Collected = snap.ApprovedSum.Add(snap.VerifiedSum)
	snap.ContributorCount = len(contributors)
	if snap.TargetAmount.IsPositive() {
		snap.ProgressPercent = snap.Collected.Mul(hundred).Div(snap.TargetAmount).Round(2)
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for eventID.
func (a *LedgerAggregator) Invalidate(ctx context.Context, eventID string) {
	if err := a.memo.Bust(ctx, eventID); err != nil {
		a.log.Warn("snapshot invalidation failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

// HandleChange busts the cache for the event a change touched. The change is
// only a hint; the next read recomputes from the store.
func (a *LedgerAggregator) HandleChange(ch models.Change) {
	if ch.EventID == "" {
		return
	}
	switch ch.Table {
	case models.TableContributions, models.TableEvents:
		a.Invalidate(context.Background(), ch.EventID)
	}
}

// Watch consumes feed until ctx is done.
func (a *LedgerAggregator) Watch(ctx context.Context, feed store.ChangeFeed) error {
	return feed.Subscribe(ctx, a.HandleChange, models.TableContributions, models.TableEvents)
}
