package mongo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/dmitrymomot/dispatchkit/pkg/audit"
	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/mongo"
	"github.com/dmitrymomot/dispatchkit/pkg/tracker"
)

func keys(doc bson.D) []string {
	out := make([]string, len(doc))
	for i, e := range doc {
		out[i] = e.Key
	}
	return out
}

func value(t *testing.T, doc bson.D, key string) any {
	t.Helper()
	for _, e := range doc {
		if e.Key == key {
			return e.Value
		}
	}
	t.Fatalf("key %q not in document", key)
	return nil
}

func TestDocument(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	ev := tracker.Event{
		ID:  "ev-1",
		Key: tracker.Key{RequestID: "req-1", RecipientID: "alice", Channel: channel.SMS},
		At:  at,
	}

	t.Run("minimal", func(t *testing.T) {
		t.Parallel()
		doc := mongo.Document(audit.NewEntry(ev, ""))
		assert.Equal(t, []string{"_id", "request_id", "recipient_id", "channel", "trigger", "at", "hash"}, keys(doc))
		assert.Equal(t, "ev-1", value(t, doc, "_id"))
		assert.Equal(t, "sms", value(t, doc, "channel"))
		assert.Equal(t, at.UTC(), value(t, doc, "at"))
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		failed := ev
		failed.Sequence = 2
		failed.From = tracker.StateSending
		failed.To = tracker.StateFailed
		failed.ErrorClass = channel.ClassTransient
		failed.Error = "connection reset"

		entry := audit.NewEntry(failed, "dispatchd")
		doc := mongo.Document(entry)
		assert.Equal(t, "dispatchd", value(t, doc, "service"))
		assert.Equal(t, string(tracker.StateSending), value(t, doc, "from"))
		assert.Equal(t, string(tracker.StateFailed), value(t, doc, "to"))
		assert.Equal(t, "transient", value(t, doc, "error_class"))
		assert.Equal(t, "connection reset", value(t, doc, "error"))
		assert.Equal(t, 2, value(t, doc, "sequence"))
		assert.Equal(t, entry.Hash, value(t, doc, "hash"))
		assert.NotContains(t, keys(doc), "provider_ref")
	})

	t.Run("encodes", func(t *testing.T) {
		t.Parallel()
		raw, err := bson.Marshal(mongo.Document(audit.NewEntry(ev, "dispatchd")))
		require.NoError(t, err)

		var back struct {
			ID      string `bson:"_id"`
			Channel string `bson:"channel"`
			Service string `bson:"service"`
		}
		require.NoError(t, bson.Unmarshal(raw, &back))
		assert.Equal(t, "ev-1", back.ID)
		assert.Equal(t, "sms", back.Channel)
		assert.Equal(t, "dispatchd", back.Service)
	})
}
