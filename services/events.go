package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/models"
	"github.com/phillip/farewell-fund-go/store"
)

type CreateEventInput struct {
	Title        string
	Description  string
	TargetAmount decimal.Decimal
	OwnerName    string
}

// FinancialSettingsInput is a partial update; nil fields keep their value.
type FinancialSettingsInput struct {
	TargetAmount      *decimal.Decimal
	AcceptingPayments *bool
	MaintenanceMode   *bool
	PaymentMethods    map[models.PaymentMethod]models.MethodConfig
}

type MemberInput struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

type EventService struct {
	store store.Store
	authz *Resolver
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

func NewEventService(s store.Store, authz *Resolver, log *zap.Logger) *EventService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventService{store: s, authz: authz, log: log, now: time.Now, newID: uuid.NewString}
}

// ---------------- EVENTS ----------------

// Create opens an event and makes the caller its owner member.
func (s *EventService) Create(ctx context.Context, id *Identity, in CreateEventInput) (*models.Event, error) {
	if id.Anonymous() {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title", "title is required")
	}
	if in.TargetAmount.IsNegative() {
		return nil, invalid("target_amount", "target amount must not be negative")
	}

	now := s.now()
	event := &models.Event{
		ID:          s.newID(),
		OwnerID:     id.UserID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Financial: models.FinancialSettings{
			TargetAmount:      in.TargetAmount,
			AcceptingPayments: true,
		},
		LedgerTotal: decimal.Zero,
		Status:      "ACTIVE",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return nil, storageFailure(s.log, "insert event", err)
	}

	owner := &models.Member{
		EventID:  event.ID,
		UserID:   id.UserID,
		Name:     in.OwnerName,
		Email:    id.Email,
		Role:     models.RoleOwner,
		JoinedAt: now,
	}
	if err := s.store.UpsertMember(ctx, owner); err != nil {
		return nil, storageFailure(s.log, "insert owner membership", err)
	}

	s.log.Info("event created", zap.String("event_id", event.ID), zap.String("actor_id", id.UserID))
	return event, nil
}

func (s *EventService) Get(ctx context.Context, id *Identity, eventID string) (*models.Event, error) {
	if err := s.authz.RequireMember(ctx, id, eventID); err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fromStore(s.log, "load event", "event", err)
	}
	return event, nil
}

// UpdateFinancialSettings changes the target, the payment switches and the
// per-method payee configuration.
func (s *EventService) UpdateFinancialSettings(ctx context.Context, id *Identity, eventID string, in FinancialSettingsInput) (*models.Event, error) {
	if err := s.authz.RequireAdmin(ctx, id, eventID); err != nil {
		return nil, err
	}
	if in.TargetAmount != nil && in.TargetAmount.IsNegative() {
		return nil, invalid("target_amount", "target amount must not be negative")
	}
	for method := range in.PaymentMethods {
		if !method.Valid() {
			return nil, invalid("payment_methods", "unsupported payment method "+string(method))
		}
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fromStore(s.log, "load event", "event", err)
	}

	fs := event.Financial
	if in.TargetAmount != nil {
		fs.TargetAmount = *in.TargetAmount
	}
	if in.AcceptingPayments != nil {
		fs.AcceptingPayments = *in.AcceptingPayments
	}
	if in.MaintenanceMode != nil {
		fs.MaintenanceMode = *in.MaintenanceMode
	}
	if in.PaymentMethods != nil {
		fs.PaymentMethods = in.PaymentMethods
	}

	updated, err := s.store.UpdateFinancialSettings(ctx, eventID, fs, s.now())
	if err != nil {
		return nil, fromStore(s.log, "update financial settings", "event", err)
	}

	s.log.Info("financial settings updated",
		zap.String("event_id", eventID),
		zap.String("actor_id", id.UserID),
		zap.Bool("accepting_payments", fs.AcceptingPayments),
		zap.Bool("maintenance_mode", fs.MaintenanceMode),
	)
	return updated, nil
}

// ---------------- MEMBERS ----------------

// AddMember adds or updates a membership. Only an owner may grant owner or
// change an owner's role, and the last owner cannot be demoted.
func (s *EventService) AddMember(ctx context.Context, id *Identity, eventID string, in MemberInput) (*models.Member, error) {
	if err := s.authz.RequireAdmin(ctx, id, eventID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, invalid("user_id", "user_id is required")
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, invalid("role", err.Error())
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, fromStore(s.log, "load event", "event", err)
	}

	userID := strings.TrimSpace(in.UserID)
	existing, err := s.store.GetMember(ctx, eventID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, storageFailure(s.log, "load member", err)
	}
	touchesOwner := role == models.RoleOwner || (existing != nil && existing.Role == models.RoleOwner)
	if touchesOwner {
		if err := s.requireOwner(ctx, id, eventID); err != nil {
			return nil, err
		}
	}
	if existing != nil && existing.Role == models.RoleOwner && role != models.RoleOwner {
		owners, err := s.countOwners(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			return nil, conflict("event must keep at least one owner")
		}
	}

	member := &models.Member{
		EventID:  eventID,
		UserID:   userID,
		Name:     in.Name,
		Email:    in.Email,
		Role:     role,
		JoinedAt: s.now(),
	}
	if err := s.store.UpsertMember(ctx, member); err != nil {
		return nil, storageFailure(s.log, "upsert member", err)
	}

	s.log.Info("member saved",
		zap.String("event_id", eventID),
		zap.String("member_id", member.UserID),
		zap.String("role", string(role)),
		zap.String("actor_id", id.UserID),
	)
	return member, nil
}

// requireOwner checks the caller's stored membership. Owner changes are not
// taken from session claims.
func (s *EventService) requireOwner(ctx context.Context, id *Identity, eventID string) error {
	caller, err := s.store.GetMember(ctx, eventID, id.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storageFailure(s.log, "load caller membership", err)
	}
	if caller == nil || caller.Role != models.RoleOwner {
		return ErrUnauthorized
	}
	return nil
}

func (s *EventService) countOwners(ctx context.Context, eventID string) (int, error) {
	members, err := s.store.ListMembers(ctx, eventID)
	if err != nil {
		return 0, storageFailure(s.log, "list members", err)
	}
	n := 0
	for _, m := range members {
		if m.Role == models.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (s *EventService) ListMembers(ctx context.Context, id *Identity, eventID string) ([]models.Member, error) {
	if err := s.authz.RequireMember(ctx, id, eventID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, eventID)
	if err != nil {
		return nil, storageFailure(s.log, "list members", err)
	}
	return members, nil
}
