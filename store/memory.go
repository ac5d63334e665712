package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phillip/farewell-fund-go/models"
)

// Memory is a process-local Store. Every write happens under one mutex, so
// conditional writes are atomic the same way a transaction would make them.
// Change notifications are delivered synchronously after the lock is released.
type Memory struct {
	mu            sync.Mutex
	contributions map[string]models.Contribution
	events        map[string]models.Event
	members       map[string]models.Member
	budgets       map[string]models.BudgetAssignment

	subMu  sync.RWMutex
	nextID int
	subs   map[int]subscriber

	// failApprove lets tests force the ledger credit step to fail.
	failApprove error
}

type subscriber struct {
	tables map[string]bool
	fn     func(models.Change)
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		contributions: map[string]models.Contribution{},
		events:        map[string]models.Event{},
		members:       map[string]models.Member{},
		budgets:       map[string]models.BudgetAssignment{},
		subs:          map[int]subscriber{},
	}
}

// FailLedgerCredit makes the next ApproveAndCredit calls fail at the ledger
// step with err. Pass nil to clear.
func (m *Memory) FailLedgerCredit(err error) {
	m.mu.Lock()
	m.failApprove = err
	m.mu.Unlock()
}

// ---------------- CONTRIBUTIONS ----------------

func (m *Memory) InsertContribution(_ context.Context, c *models.Contribution) error {
	m.mu.Lock()
	if _, exists := m.contributions[c.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("store: contribution %s already exists", c.ID)
	}
	m.contributions[c.ID] = *c
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableContributions, EventID: c.EventID, DocumentID: c.ID, Operation: "insert"})
	return nil
}

func (m *Memory) GetContribution(_ context.Context, id string) (*models.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contributions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListContributions(_ context.Context, f ContributionFilter) ([]models.Contribution, error) {
	m.mu.Lock()
	out := make([]models.Contribution, 0, len(m.contributions))
	for _, c := range m.contributions {
		if f.EventID != "" && c.EventID != f.EventID {
			continue
		}
		if f.ContributorID != "" && c.ContributorID != f.ContributorID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
			continue
		}
		out = append(out, c)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) TransitionStatus(_ context.Context, t Transition) (*models.Contribution, error) {
	m.mu.Lock()
	c, ok := m.contributions[t.ID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if !containsStatus(t.From, c.Status) {
		m.mu.Unlock()
		return nil, &StatusConflictError{ID: c.ID, Current: c.Status, CurrentRefund: c.RefundStatus}
	}
	applyTransition(&c, t)
	m.contributions[c.ID] = c
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableContributions, EventID: c.EventID, DocumentID: c.ID, Operation: "update"})
	return &c, nil
}

func (m *Memory) ApproveAndCredit(_ context.Context, id string, from []models.ContributionStatus, actorID string, at time.Time) (*models.Contribution, error) {
	m.mu.Lock()
	c, ok := m.contributions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if !containsStatus(from, c.Status) {
		m.mu.Unlock()
		return nil, &StatusConflictError{ID: c.ID, Current: c.Status, CurrentRefund: c.RefundStatus}
	}
	ev, ok := m.events[c.EventID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("event %s: %w", c.EventID, ErrNotFound)
	}
	if m.failApprove != nil {
		err := m.failApprove
		m.mu.Unlock()
		return nil, err
	}

	// both rows are committed together or not at all
	applyTransition(&c, Transition{To: models.StatusApproved, ActorID: actorID, At: at})
	ev.LedgerTotal = ev.LedgerTotal.Add(c.Amount)
	ev.ApprovedCount++
	ev.UpdatedAt = at
	m.contributions[c.ID] = c
	m.events[ev.ID] = ev
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableContributions, EventID: c.EventID, DocumentID: c.ID, Operation: "update"})
	m.publish(models.Change{Table: models.TableEvents, EventID: ev.ID, DocumentID: ev.ID, Operation: "update"})
	return &c, nil
}

func (m *Memory) SetRefundStatus(_ context.Context, id string, from []models.RefundStatus, to models.RefundStatus, actorID string, at time.Time) (*models.Contribution, error) {
	m.mu.Lock()
	c, ok := m.contributions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if c.Status != models.StatusApproved || !containsRefund(from, c.RefundStatus) {
		m.mu.Unlock()
		return nil, &StatusConflictError{ID: c.ID, Current: c.Status, CurrentRefund: c.RefundStatus}
	}
	c.RefundStatus = to
	c.RefundedAt = &at
	c.ProcessedBy = actorID
	c.UpdatedAt = at
	c.Version++
	m.contributions[c.ID] = c
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableContributions, EventID: c.EventID, DocumentID: c.ID, Operation: "update"})
	return &c, nil
}

// ---------------- EVENTS ----------------

func (m *Memory) InsertEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	if _, exists := m.events[e.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("store: event %s already exists", e.ID)
	}
	m.events[e.ID] = *e
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableEvents, EventID: e.ID, DocumentID: e.ID, Operation: "insert"})
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *Memory) UpdateFinancialSettings(_ context.Context, id string, fs models.FinancialSettings, at time.Time) (*models.Event, error) {
	m.mu.Lock()
	e, ok := m.events[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	e.Financial = fs
	e.UpdatedAt = at
	m.events[id] = e
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableEvents, EventID: id, DocumentID: id, Operation: "update"})
	return &e, nil
}

// ---------------- MEMBERS ----------------

func (m *Memory) UpsertMember(_ context.Context, mem *models.Member) error {
	mem.ID = models.MemberKey(mem.EventID, mem.UserID)

	m.mu.Lock()
	if prev, ok := m.members[mem.ID]; ok && mem.JoinedAt.IsZero() {
		mem.JoinedAt = prev.JoinedAt
	}
	m.members[mem.ID] = *mem
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableMembers, EventID: mem.EventID, DocumentID: mem.ID, Operation: "update"})
	return nil
}

func (m *Memory) GetMember(_ context.Context, eventID, userID string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mem, ok := m.members[models.MemberKey(eventID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &mem, nil
}

func (m *Memory) ListMembers(_ context.Context, eventID string) ([]models.Member, error) {
	m.mu.Lock()
	out := []models.Member{}
	for _, mem := range m.members {
		if mem.EventID == eventID {
			out = append(out, mem)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ---------------- BUDGETS ----------------

func (m *Memory) UpsertBudget(_ context.Context, b *models.BudgetAssignment) error {
	b.ID = models.MemberKey(b.EventID, b.MemberID)

	m.mu.Lock()
	m.budgets[b.ID] = *b
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableBudgetAssignments, EventID: b.EventID, DocumentID: b.ID, Operation: "update"})
	return nil
}

func (m *Memory) ReplaceBudgets(_ context.Context, eventID string, rows []models.BudgetAssignment) error {
	m.mu.Lock()
	for id, b := range m.budgets {
		if b.EventID == eventID {
			delete(m.budgets, id)
		}
	}
	for _, b := range rows {
		b.ID = models.MemberKey(b.EventID, b.MemberID)
		m.budgets[b.ID] = b
	}
	m.mu.Unlock()

	m.publish(models.Change{Table: models.TableBudgetAssignments, EventID: eventID, Operation: "replace"})
	return nil
}

func (m *Memory) ListBudgets(_ context.Context, eventID string) ([]models.BudgetAssignment, error) {
	m.mu.Lock()
	out := []models.BudgetAssignment{}
	for _, b := range m.budgets {
		if b.EventID == eventID {
			out = append(out, b)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

// ---------------- CHANGE FEED ----------------

// OnChange registers fn without blocking and returns a function that removes it.
func (m *Memory) OnChange(fn func(models.Change), tables ...string) func() {
	set := map[string]bool{}
	for _, t := range tables {
		set[t] = true
	}

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = subscriber{tables: set, fn: fn}
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Memory) Subscribe(ctx context.Context, fn func(models.Change), tables ...string) error {
	cancel := m.OnChange(fn, tables...)
	defer cancel()

	<-ctx.Done()
	return nil
}

func (m *Memory) publish(ch models.Change) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for _, s := range m.subs {
		if len(s.tables) > 0 && !s.tables[ch.Table] {
			continue
		}
		s.fn(ch)
	}
}

// applyTransition stamps the status-specific fields of a primary transition.
func applyTransition(c *models.Contribution, t Transition) {
	at := t.At
	c.Status = t.To
	c.UpdatedAt = at
	c.Version++
	if t.ActorID != "" {
		c.ProcessedBy = t.ActorID
	}
	if t.Notes != "" {
		c.Metadata.AdminNotes = t.Notes
	}

	switch t.To {
	case models.StatusVerified:
		c.VerifiedAt = &at
	case models.StatusPaidPendingAdminVerification:
		c.PaidAt = &at
		if t.PaymentRef != "" {
			c.PaymentRef = t.PaymentRef
		}
	case models.StatusApproved:
		c.ApprovedAt = &at
	case models.StatusRejected:
		c.RejectedAt = &at
	}
}
