package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/models"
)

// Mongo is the MongoDB-backed Store. Approval and budget replacement run in
// multi-document transactions, so the deployment must be a replica set.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var _ Store = (*Mongo)(nil)

// Connect dials uri with the decimal-aware registry and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(NewRegistry()))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func NewMongo(client *mongo.Client, dbName string, log *zap.Logger) *Mongo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mongo{client: client, db: client.Database(dbName), log: log}
}

func (s *Mongo) contributions() *mongo.Collection { return s.db.Collection(models.TableContributions) }
func (s *Mongo) events() *mongo.Collection        { return s.db.Collection(models.TableEvents) }
func (s *Mongo) members() *mongo.Collection       { return s.db.Collection(models.TableMembers) }
func (s *Mongo) budgets() *mongo.Collection       { return s.db.Collection(models.TableBudgetAssignments) }

// EnsureIndexes creates the secondary indexes the read paths rely on.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.contributions(): {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "contributor_id", Value: 1}}},
		},
		s.members(): {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.budgets(): {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "member_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for col, idx := range indexes {
		if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col.Name(), err)
		}
	}
	return nil
}

func (s *Mongo) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	return sess.WithTransaction(ctx, fn, txnOpts)
}

// ---------------- CONTRIBUTIONS ----------------

func (s *Mongo) InsertContribution(ctx context.Context, c *models.Contribution) error {
	if _, err := s.contributions().InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (s *Mongo) GetContribution(ctx context.Context, id string) (*models.Contribution, error) {
	var c models.Contribution
	err := s.contributions().FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contribution: %w", err)
	}
	return &c, nil
}

func (s *Mongo) ListContributions(ctx context.Context, f ContributionFilter) ([]models.Contribution, error) {
	filter := bson.M{}
	if f.EventID != "" {
		filter["event_id"] = f.EventID
	}
	if f.ContributorID != "" {
		filter["contributor_id"] = f.ContributorID
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.contributions().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find contributions: %w", err)
	}

	contributions := []models.Contribution{}
	if err := cursor.All(ctx, &contributions); err != nil {
		return nil, fmt.Errorf("decode contributions: %w", err)
	}
	return contributions, nil
}

func transitionUpdate(t Transition) bson.M {
	set := bson.M{"status": t.To, "updated_at": t.At}
	if t.ActorID != "" {
		set["processed_by"] = t.ActorID
	}
	if t.Notes != "" {
		set["metadata.admin_notes"] = t.Notes
	}

	switch t.To {
	case models.StatusVerified:
		set["verified_at"] = t.At
	case models.StatusPaidPendingAdminVerification:
		set["paid_at"] = t.At
		if t.PaymentRef != "" {
			set["transaction_reference"] = t.PaymentRef
		}
	case models.StatusApproved:
		set["approved_at"] = t.At
	case models.StatusRejected:
		set["rejected_at"] = t.At
	}
	return bson.M{"$set": set, "$inc": bson.M{"version": 1}}
}

// mismatch explains why a conditional update matched nothing.
func (s *Mongo) mismatch(ctx context.Context, id string) error {
	var current models.Contribution
	err := s.contributions().FindOne(ctx, bson.M{"_id": id}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reload contribution: %w", err)
	}
	return &StatusConflictError{ID: id, Current: current.Status, CurrentRefund: current.RefundStatus}
}

func (s *Mongo) TransitionStatus(ctx context.Context, t Transition) (*models.Contribution, error) {
	var updated models.Contribution
	err := s.contributions().FindOneAndUpdate(ctx,
		bson.M{"_id": t.ID, "status": bson.M{"$in": t.From}},
		transitionUpdate(t),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.mismatch(ctx, t.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("transition contribution: %w", err)
	}
	return &updated, nil
}

func (s *Mongo) ApproveAndCredit(ctx context.Context, id string, from []models.ContributionStatus, actorID string, at time.Time) (*models.Contribution, error) {
	// driver errors are returned unwrapped so WithTransaction can see
	// TransientTransactionError labels and retry write conflicts
	result, err := s.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// --- Check-and-set the contribution row ---
		var approved models.Contribution
		err := s.contributions().FindOneAndUpdate(sc,
			bson.M{"_id": id, "status": bson.M{"$in": from}},
			transitionUpdate(Transition{To: models.StatusApproved, ActorID: actorID, At: at}),
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&approved)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, s.mismatch(sc, id)
		}
		if err != nil {
			return nil, err
		}

		// --- Credit the event ledger in the same transaction ---
		res, err := s.events().UpdateOne(sc,
			bson.M{"_id": approved.EventID},
			bson.M{
				"$inc": bson.M{"ledger_total": approved.Amount, "approved_count": 1},
				"$set": bson.M{"updated_at": at},
			},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, fmt.Errorf("event %s: %w", approved.EventID, ErrNotFound)
		}
		return &approved, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Contribution), nil
}

func (s *Mongo) SetRefundStatus(ctx context.Context, id string, from []models.RefundStatus, to models.RefundStatus, actorID string, at time.Time) (*models.Contribution, error) {
	var updated models.Contribution
	err := s.contributions().FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.StatusApproved, "refund_status": bson.M{"$in": from}},
		bson.M{
			"$set": bson.M{"refund_status": to, "refunded_at": at, "processed_by": actorID, "updated_at": at},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.mismatch(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("refund contribution: %w", err)
	}
	return &updated, nil
}

// ---------------- EVENTS ----------------

func (s *Mongo) InsertEvent(ctx context.Context, e *models.Event) error {
	if _, err := s.events().InsertOne(ctx, e); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Mongo) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	err := s.events().FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

func (s *Mongo) UpdateFinancialSettings(ctx context.Context, id string, fs models.FinancialSettings, at time.Time) (*models.Event, error) {
	var updated models.Event
	err := s.events().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"financial": fs, "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update financial settings: %w", err)
	}
	return &updated, nil
}

// ---------------- MEMBERS ----------------

func (s *Mongo) UpsertMember(ctx context.Context, m *models.Member) error {
	m.ID = models.MemberKey(m.EventID, m.UserID)
	joined := m.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}

	_, err := s.members().UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{
			"$set": bson.M{
				"event_id": m.EventID,
				"user_id":  m.UserID,
				"name":     m.Name,
				"email":    m.Email,
				"role":     m.Role,
			},
			"$setOnInsert": bson.M{"joined_at": joined},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *Mongo) GetMember(ctx context.Context, eventID, userID string) (*models.Member, error) {
	var m models.Member
	err := s.members().FindOne(ctx, bson.M{"_id": models.MemberKey(eventID, userID)}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *Mongo) ListMembers(ctx context.Context, eventID string) ([]models.Member, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	cursor, err := s.members().Find(ctx, bson.M{"event_id": eventID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}

	members := []models.Member{}
	if err := cursor.All(ctx, &members); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return members, nil
}

// ---------------- BUDGETS ----------------

func (s *Mongo) UpsertBudget(ctx context.Context, b *models.BudgetAssignment) error {
	b.ID = models.MemberKey(b.EventID, b.MemberID)
	_, err := s.budgets().ReplaceOne(ctx, bson.M{"_id": b.ID}, b, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	return nil
}

func (s *Mongo) ReplaceBudgets(ctx context.Context, eventID string, rows []models.BudgetAssignment) error {
	docs := make([]interface{}, 0, len(rows))
	for i := range rows {
		rows[i].ID = models.MemberKey(rows[i].EventID, rows[i].MemberID)
		docs = append(docs, rows[i])
	}

	_, err := s.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.budgets().DeleteMany(sc, bson.M{"event_id": eventID}); err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, nil
		}
		_, err := s.budgets().InsertMany(sc, docs)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("replace budgets: %w", err)
	}
	return nil
}

func (s *Mongo) ListBudgets(ctx context.Context, eventID string) ([]models.BudgetAssignment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "member_id", Value: 1}})
	cursor, err := s.budgets().Find(ctx, bson.M{"event_id": eventID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find budgets: %w", err)
	}

	budgets := []models.BudgetAssignment{}
	if err := cursor.All(ctx, &budgets); err != nil {
		return nil, fmt.Errorf("decode budgets: %w", err)
	}
	return budgets, nil
}
