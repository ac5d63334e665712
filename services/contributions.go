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

// Source states of each admin transition. approved and rejected are terminal.
var (
	verifiableFrom = []models.ContributionStatus{models.StatusPending}
	payableFrom    = []models.ContributionStatus{models.StatusPending}
	approvableFrom = []models.ContributionStatus{models.StatusVerified, models.StatusPaidPendingAdminVerification}
	rejectableFrom = []models.ContributionStatus{models.StatusPending, models.StatusVerified, models.StatusPaidPendingAdminVerification}

	refundableFrom = map[models.RefundStatus][]models.RefundStatus{
		models.RefundPartial: {models.RefundNone},
		models.RefundFull:    {models.RefundNone, models.RefundPartial},
	}
)

// Notifier is told about approvals after they commit.
type Notifier interface {
	ContributionApproved(ctx context.Context, contributor *models.Member, c *models.Contribution) error
}

type CreateContributionInput struct {
	EventID    string
	Amount     decimal.Decimal
	Method     models.PaymentMethod
	PaymentRef string
	ReceiptURL string

	// Manual marks a trusted entry recorded by an admin on behalf of
	// ContributorID. It is stored as verified.
	Manual        bool
	ContributorID string
	AdminNotes    string
	// AutoApprove approves a manual entry right after it is recorded.
	AutoApprove bool
}

type ContributionService struct {
	store  store.Store
	authz  *Resolver
	notify Notifier
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewContributionService(s store.Store, authz *Resolver, notify Notifier, log *zap.Logger) *ContributionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContributionService{
		store:  s,
		authz:  authz,
		notify: notify,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func validateContribution(in CreateContributionInput) error {
	if strings.TrimSpace(in.EventID) == "" {
		return invalid("event_id", "event_id is required")
	}
	if !in.Amount.IsPositive() {
		return invalid("amount", "amount must be greater than 0")
	}
	if !in.Method.Valid() {
		return invalid("method", "unsupported payment method")
	}
	if in.Manual && strings.TrimSpace(in.ContributorID) == "" {
		return invalid("contributor_id", "contributor_id is required for manual entries")
	}
	return nil
}

// ---------------- CREATE ----------------

func (s *ContributionService) Create(ctx context.Context, id *Identity, in CreateContributionInput) (*models.Contribution, error) {
	if id.Anonymous() {
		return nil, ErrUnauthenticated
	}
	if err := validateContribution(in); err != nil {
		return nil, err
	}

	event, err := s.store.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, fromStore(s.log, "load event", "event", err)
	}

	now := s.now()
	c := &models.Contribution{
		ID:            s.newID(),
		EventID:       event.ID,
		ContributorID: id.UserID,
		Amount:        in.Amount,
		Method:        in.Method,
		PaymentRef:    strings.TrimSpace(in.PaymentRef),
		ReceiptURL:    in.ReceiptURL,
		Status:        models.StatusPending,
		RefundStatus:  models.RefundNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if in.Manual {
		// --- Trusted admin entry ---
		if err := s.authz.RequireAdmin(ctx, id, event.ID); err != nil {
			return nil, err
		}
		if _, err := s.store.GetMember(ctx, event.ID, in.ContributorID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalid("contributor_id", "contributor is not a member of this event")
			}
			return nil, storageFailure(s.log, "load contributor", err)
		}
		c.ContributorID = in.ContributorID
		c.Status = models.StatusVerified
		c.VerifiedAt = &now
		c.ProcessedBy = id.UserID
		c.Metadata = models.ContributionMetadata{AdminNotes: in.AdminNotes, ManualEntry: true, RecordedBy: id.UserID}
	} else {
		// --- Self-submitted ---
		if err := s.authz.RequireMember(ctx, id, event.ID); err != nil {
			return nil, err
		}
		if !event.Financial.AcceptingPayments || event.Financial.MaintenanceMode {
			return nil, conflict("event is not accepting contributions right now")
		}
		if !event.Financial.MethodEnabled(in.Method) {
			return nil, invalid("method", "payment method is not enabled for this event")
		}
	}

	if err := s.store.InsertContribution(ctx, c); err != nil {
		return nil, storageFailure(s.log, "insert contribution", err)
	}

	s.log.Info("contribution created",
		zap.String("contribution_id", c.ID),
		zap.String("event_id", c.EventID),
		zap.String("actor_id", id.UserID),
		zap.String("status", string(c.Status)),
		zap.Bool("manual", in.Manual),
	)

	if in.Manual && in.AutoApprove {
		approved, err := s.Approve(ctx, id, c.ID)
		if err != nil {
			return c, &AutoApproveError{Contribution: c, Err: err}
		}
		return approved, nil
	}
	return c, nil
}

// ---------------- READ ----------------

// ListOwn returns the caller's contributions to eventID, newest first.
func (s *ContributionService) ListOwn(ctx context.Context, id *Identity, eventID string) ([]models.Contribution, error) {
	if id.Anonymous() {
		return nil, ErrUnauthenticated
	}
	list, err := s.store.ListContributions(ctx, store.ContributionFilter{EventID: eventID, ContributorID: id.UserID})
	if err != nil {
		return nil, storageFailure(s.log, "list own contributions", err)
	}
	return list, nil
}

func (s *ContributionService) ListAll(ctx context.Context, id *Identity, eventID string, statuses ...models.ContributionStatus) ([]models.Contribution, error) {
	if err := s.authz.RequireAdmin(ctx, id, eventID); err != nil {
		return nil, err
	}
	list, err := s.store.ListContributions(ctx, store.ContributionFilter{EventID: eventID, Statuses: statuses})
	if err != nil {
		return nil, storageFailure(s.log, "list contributions", err)
	}
	return list, nil
}

// Get returns one contribution to its contributor or an event admin.
func (s *ContributionService) Get(ctx context.Context, id *Identity, contributionID string) (*models.Contribution, error) {
	if id.Anonymous() {
		return nil, ErrUnauthenticated
	}
	c, err := s.load(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.ContributorID == id.UserID {
		return c, nil
	}
	if err := s.authz.RequireAdmin(ctx, id, c.EventID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ContributionService) load(ctx context.Context, contributionID string) (*models.Contribution, error) {
	c, err := s.store.GetContribution(ctx, contributionID)
	if err != nil {
		return nil, fromStore(s.log, "load contribution", "contribution", err)
	}
	return c, nil
}

// loadForAdmin resolves the owning event before the admin check.
func (s *ContributionService) loadForAdmin(ctx context.Context, id *Identity, contributionID string) (*models.Contribution, error) {
	if id.Anonymous() {
		return nil, ErrUnauthenticated
	}
	c, err := s.load(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.RequireAdmin(ctx, id, c.EventID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ContributionService) logTransition(c *models.Contribution, actorID string) {
	s.log.Info("contribution transitioned",
		zap.String("contribution_id", c.ID),
		zap.String("event_id", c.EventID),
		zap.String("actor_id", actorID),
		zap.String("status", string(c.Status)),
		zap.String("refund_status", string(c.RefundStatus)),
	)
}

// ---------------- TRANSITIONS ----------------

// MarkPaid lets the contributor report a completed transfer:
// pending -> paid_pending_admin_verification.
func (s *ContributionService) MarkPaid(ctx context.Context, id *Identity, contributionID, paymentRef string) (*models.Contribution, error) {
	if id.Anonymous() {
		return nil, ErrUnauthenticated
	}
	c, err := s.load(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.ContributorID != id.UserID {
		return nil, ErrUnauthorized
	}
	if c.Method == models.MethodCash {
		return nil, invalid("method", "cash contributions are verified by an admin")
	}

	updated, err := s.store.TransitionStatus(ctx, store.Transition{
		ID:         c.ID,
		From:       payableFrom,
		To:         models.StatusPaidPendingAdminVerification,
		PaymentRef: strings.TrimSpace(paymentRef),
		At:         s.now(),
	})
	if err != nil {
		return nil, s.transitionError(err, "marked paid")
	}
	s.logTransition(updated, id.UserID)
	return updated, nil
}

// Verify moves pending -> verified.
func (s *ContributionService) Verify(ctx context.Context, id *Identity, contributionID, notes string) (*models.Contribution, error) {
	c, err := s.loadForAdmin(ctx, id, contributionID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.TransitionStatus(ctx, store.Transition{
		ID:      c.ID,
		From:    verifiableFrom,
		To:      models.StatusVerified,
		ActorID: id.UserID,
		Notes:   notes,
		At:      s.now(),
	})
	if err != nil {
		return nil, s.transitionError(err, "verified")
	}
	s.logTransition(updated, id.UserID)
	return updated, nil
}

// Approve moves verified or paid_pending_admin_verification to approved and
// credits the event ledger in the same store transaction. Of two concurrent
// calls for one id exactly one succeeds; the other gets a ConflictError.
func (s *ContributionService) Approve(ctx context.Context, id *Identity, contributionID string) (*models.Contribution, error) {
	c, err := s.loadForAdmin(ctx, id, contributionID)
	if err != nil {
		return nil, err
	}

	approved, err := s.store.ApproveAndCredit(ctx, c.ID, approvableFrom, id.UserID, s.now())
	if err != nil {
		return nil, s.transitionError(err, "approved")
	}
	s.logTransition(approved, id.UserID)
	s.notifyApproved(ctx, approved)
	return approved, nil
}

// Reject moves any non-terminal state to rejected. Rejecting a rejected
// contribution is a no-op.
func (s *ContributionService) Reject(ctx context.Context, id *Identity, contributionID, notes string) (*models.Contribution, error) {
	c, err := s.loadForAdmin(ctx, id, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Status == models.StatusRejected {
		return c, nil
	}

	updated, err := s.store.TransitionStatus(ctx, store.Transition{
		ID:      c.ID,
		From:    rejectableFrom,
		To:      models.StatusRejected,
		ActorID: id.UserID,
		Notes:   notes,
		At:      s.now(),
	})
	var sc *store.StatusConflictError
	if errors.As(err, &sc) && sc.Current == models.StatusRejected {
		return s.load(ctx, c.ID)
	}
	if err != nil {
		return nil, s.transitionError(err, "rejected")
	}
	s.logTransition(updated, id.UserID)
	return updated, nil
}

// Refund sets the refund overlay on an approved contribution. The primary
// status, the ledger total and the collected figure are left as they are.
func (s *ContributionService) Refund(ctx context.Context, id *Identity, contributionID string, kind models.RefundStatus) (*models.Contribution, error) {
	from, ok := refundableFrom[kind]
	if !ok {
		return nil, invalid("kind", "refund kind must be partial or full")
	}
	c, err := s.loadForAdmin(ctx, id, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.StatusApproved {
		return nil, conflict("only approved contributions can be refunded (current status %s)", c.Status)
	}
	if c.RefundStatus == kind {
		return c, nil
	}

	updated, err := s.store.SetRefundStatus(ctx, c.ID, from, kind, id.UserID, s.now())
	var sc *store.StatusConflictError
	if errors.As(err, &sc) {
		if sc.CurrentRefund == kind {
			return s.load(ctx, c.ID)
		}
		return nil, conflict("refund already processed as %s", sc.CurrentRefund)
	}
	if err != nil {
		return nil, fromStore(s.log, "refund contribution", "contribution", err)
	}
	s.logTransition(updated, id.UserID)
	return updated, nil
}

// transitionError turns a failed conditional write into the caller-facing error.
func (s *ContributionService) transitionError(err error, verb string) error {
	var sc *store.StatusConflictError
	if errors.As(err, &sc) {
		if sc.Current.IsTerminal() {
			return conflict("contribution already processed (%s)", sc.Current)
		}
		return conflict("contribution cannot be %s while %s", verb, sc.Current)
	}
	return fromStore(s.log, "transition contribution", "contribution", err)
}

func (s *ContributionService) notifyApproved(ctx context.Context, c *models.Contribution) {
	if s.notify == nil {
		return
	}
	member, err := s.store.GetMember(ctx, c.EventID, c.ContributorID)
	if err != nil || member.Email == "" {
		return
	}
	if err := s.notify.ContributionApproved(ctx, member, c); err != nil {
		s.log.Warn("approval notice failed", zap.String("contribution_id", c.ID), zap.Error(err))
	}
}
