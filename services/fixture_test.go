package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/phillip/farewell-fund-go/cache"
	"github.com/phillip/farewell-fund-go/models"
	"github.com/phillip/farewell-fund-go/store"
)

const eventID = "ev-1"

var (
	admin    = &Identity{UserID: "admin-1"}
	member1  = &Identity{UserID: "u-1"}
	member2  = &Identity{UserID: "u-2"}
	outsider = &Identity{UserID: "stranger"}
)

type fixture struct {
	mem *store.Memory
	svc *Services
}

// newFixture seeds one event with an admin and two students, and wires the
// snapshot cache to the store's change notifications.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Now()

	require.NoError(t, mem.InsertEvent(ctx, &models.Event{
		ID:          eventID,
		OwnerID:     admin.UserID,
		Title:       "Class of 2026 farewell",
		Financial:   models.FinancialSettings{TargetAmount: decimal.NewFromInt(10000), AcceptingPayments: true},
		LedgerTotal: decimal.Zero,
		Status:      "ACTIVE",
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
	for _, m := range []models.Member{
		{EventID: eventID, UserID: admin.UserID, Name: "Asha", Role: models.RoleAdmin},
		{EventID: eventID, UserID: member1.UserID, Name: "Ravi", Email: "ravi@example.com", Role: models.RoleStudent},
		{EventID: eventID, UserID: member2.UserID, Name: "Meera", Role: models.RoleStudent},
	} {
		m := m
		require.NoError(t, mem.UpsertMember(ctx, &m))
	}

	svc := New(Deps{Store: mem, Cache: cache.NewLocal(), SnapshotTTL: time.Minute})
	stop := mem.OnChange(svc.Ledger.HandleChange, models.TableContributions, models.TableEvents)
	t.Cleanup(stop)

	return &fixture{mem: mem, svc: svc}
}

func (f *fixture) submit(t *testing.T, who *Identity, amount int64, method models.PaymentMethod) *models.Contribution {
	t.Helper()
	c, err := f.svc.Contributions.Create(context.Background(), who, CreateContributionInput{
		EventID: eventID,
		Amount:  decimal.NewFromInt(amount),
		Method:  method,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) verified(t *testing.T, who *Identity, amount int64) *models.Contribution {
	t.Helper()
	c := f.submit(t, who, amount, models.MethodUPI)
	c, err := f.svc.Contributions.Verify(context.Background(), admin, c.ID, "")
	require.NoError(t, err)
	return c
}

func (f *fixture) approved(t *testing.T, who *Identity, amount int64) *models.Contribution {
	t.Helper()
	c := f.verified(t, who, amount)
	c, err := f.svc.Contributions.Approve(context.Background(), admin, c.ID)
	require.NoError(t, err)
	return c
}

func (f *fixture) snapshot(t *testing.T) FinancialSnapshot {
	t.Helper()
	snap, err := f.svc.Ledger.Snapshot(context.Background(), admin, eventID)
	require.NoError(t, err)
	return snap
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) ContributionApproved(_ context.Context, m *models.Member, c *models.Contribution) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, m.Email+":"+c.ID)
	return n.err
}
