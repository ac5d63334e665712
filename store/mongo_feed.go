package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/models"
)

type changeEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *struct {
		EventID string `bson:"event_id"`
	} `bson:"fullDocument"`
}

// toChange maps a raw change stream document onto a Change. Rows of the
// events collection are keyed by their own id.
func (ev changeEvent) toChange() models.Change {
	ch := models.Change{
		Table:      ev.NS.Coll,
		DocumentID: ev.DocumentKey.ID,
		Operation:  ev.OperationType,
	}
	switch {
	case ev.NS.Coll == models.TableEvents:
		ch.EventID = ev.DocumentKey.ID
	case ev.FullDocument != nil:
		ch.EventID = ev.FullDocument.EventID
	}
	return ch
}

// Subscribe tails a database change stream filtered to tables. fn receives
// only the notification, never the row.
func (s *Mongo) Subscribe(ctx context.Context, fn func(models.Change), tables ...string) error {
	pipeline := mongo.Pipeline{}
	if len(tables) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"ns.coll": bson.M{"$in": tables}}}})
	}

	cs, err := s.db.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.db.Name(), err)
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			s.log.Warn("undecodable change event", zap.Error(err))
			continue
		}
		fn(ev.toChange())
	}

	if err := cs.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("change stream: %w", err)
	}
	return nil
}
