package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillip/farewell-fund-go/models"
)

func TestEqualShare(t *testing.T) {
	tests := []struct {
		total   string
		members int
		want    string
	}{
		{"3000", 3, "1000"},
		{"1000", 3, "334"},
		{"0", 4, "0"},
		{"99.5", 2, "50"},
		{"7", 7, "1"},
		{"3.00000000000000001", 3, "2"},
		{"0.01", 3, "1"},
	}
	for _, tt := range tests {
		got, err := EqualShare(decimal.RequireFromString(tt.total), tt.members)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s/%d = %s", tt.total, tt.members, got)
		assert.True(t, got.Mul(decimal.NewFromInt(int64(tt.members))).GreaterThanOrEqual(decimal.RequireFromString(tt.total)))
	}

	_, err := EqualShare(decimal.NewFromInt(100), 0)
	assert.ErrorIs(t, err, ErrNoMembers)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDistributeEqually(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows, err := f.svc.Budget.DistributeEqually(ctx, admin, eventID, decimal.NewFromInt(3000))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.True(t, r.AssignedAmount.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, admin.UserID, r.UpdatedBy)
	}

	_, err = f.svc.Budget.AssignIndividual(ctx, admin, eventID, member1.UserID, decimal.NewFromInt(50))
	require.NoError(t, err)

	rows, err = f.svc.Budget.DistributeEqually(ctx, admin, eventID, decimal.NewFromInt(1000))
	require.NoError(t, err)

	listed, err := f.svc.Budget.List(ctx, admin, eventID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	sum := decimal.Zero
	for _, r := range listed {
		assert.True(t, r.AssignedAmount.Equal(decimal.NewFromInt(334)), "member %s got %s", r.MemberID, r.AssignedAmount)
		sum = sum.Add(r.AssignedAmount)
	}
	assert.True(t, sum.GreaterThanOrEqual(decimal.NewFromInt(1000)))
	assert.Len(t, rows, 3)
}

func TestDistributeEqually_NoMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := &Identity{UserID: "owner-2"}
	event, err := f.svc.Events.Create(ctx, id, CreateEventInput{Title: "Empty", TargetAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	// The creator is the only member; distributing still works.
	rows, err := f.svc.Budget.DistributeEqually(ctx, id, event.ID, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	claimed := &Identity{UserID: "ghost", EventRoles: map[string]models.Role{"ev-empty": models.RoleAdmin}}
	require.NoError(t, f.mem.InsertEvent(ctx, &models.Event{ID: "ev-empty", Title: "No one"}))
	_, err = f.svc.Budget.DistributeEqually(ctx, claimed, "ev-empty", decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrNoMembers)
}

func TestBudget_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Budget.DistributeEqually(ctx, admin, eventID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Budget.AssignIndividual(ctx, admin, eventID, member1.UserID, decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Budget.AssignIndividual(ctx, admin, eventID, outsider.UserID, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Budget.DistributeEqually(ctx, admin, "missing", decimal.NewFromInt(5))
	assert.Error(t, err)
}

func TestBudget_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Budget.DistributeEqually(ctx, member1, eventID, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Budget.AssignIndividual(ctx, member1, eventID, member1.UserID, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.Budget.List(ctx, member2, eventID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	rows, err := f.svc.Budget.List(ctx, admin, eventID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAssignIndividual_Upserts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Budget.AssignIndividual(ctx, admin, eventID, member2.UserID, decimal.NewFromInt(200))
	require.NoError(t, err)
	_, err = f.svc.Budget.AssignIndividual(ctx, admin, eventID, member2.UserID, decimal.RequireFromString("250.50"))
	require.NoError(t, err)

	rows, err := f.svc.Budget.List(ctx, admin, eventID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, member2.UserID, rows[0].MemberID)
	assert.True(t, rows[0].AssignedAmount.Equal(decimal.RequireFromString("250.5")))
}
