package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/dispatchkit/pkg/audit"
)

// duplicateKey is the server error code for a unique index violation.
const duplicateKey = 11000

// EventWriter stores audit entries in one collection. The entry id is the
// document _id, so rewriting a batch after a partial failure skips the
// documents already stored.
type EventWriter struct {
	coll *mongo.Collection
}

var _ audit.BatchWriter = (*EventWriter)(nil)

func NewEventWriter(client *mongo.Client, cfg Config) *EventWriter {
	return &EventWriter{coll: client.Database(cfg.Database).Collection(cfg.Collection)}
}

// EnsureIndexes creates the lookup index on the attempt key.
func (w *EventWriter) EnsureIndexes(ctx context.Context) error {
	_, err := w.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "channel", Value: 1}, {Key: "at", Value: 1}},
	})
	return err
}

// StoreBatch implements audit.BatchWriter.
func (w *EventWriter) StoreBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]any, len(entries))
	for i, e := range entries {
		docs[i] = Document(e)
	}

	_, err := w.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return nil
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && bwe.WriteConcernError == nil {
		failed := 0
		for _, we := range bwe.WriteErrors {
			if we.Code != duplicateKey {
				failed++
			}
		}
		if failed == 0 {
			return nil
		}
		return fmt.Errorf("%w: %d of %d entries: %w", ErrInsertFailed, failed, len(entries), err)
	}
	return fmt.Errorf("%w: %w", ErrInsertFailed, err)
}

// Document maps an entry to its stored form. Empty optional fields are left out.
func Document(e audit.Entry) bson.D {
	doc := bson.D{
		{Key: "_id", Value: e.ID},
		{Key: "request_id", Value: e.RequestID},
		{Key: "recipient_id", Value: e.RecipientID},
		{Key: "channel", Value: string(e.Channel)},
		{Key: "trigger", Value: string(e.Trigger)},
		{Key: "at", Value: e.At.UTC()},
		{Key: "hash", Value: e.Hash},
	}
	optional := []struct {
		key   string
		value string
	}{
		{"service", e.Service},
		{"from", string(e.From)},
		{"to", string(e.To)},
		{"error_class", string(e.ErrorClass)},
		{"error", e.Error},
		{"outcome", string(e.Outcome)},
		{"provider_ref", e.ProviderRef},
	}
	for _, f := range optional {
		if f.value != "" {
			doc = append(doc, bson.E{Key: f.key, Value: f.value})
		}
	}
	if e.Sequence > 0 {
		doc = append(doc, bson.E{Key: "sequence", Value: e.Sequence})
	}
	return doc
}
