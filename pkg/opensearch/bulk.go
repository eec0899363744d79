package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/dmitrymomot/dispatchkit/pkg/audit"
)

// EventWriter writes audit entries to daily indices through the bulk API.
// Entry ids become document ids, so rewriting a batch does not duplicate
// documents.
type EventWriter struct {
	client *opensearch.Client
	prefix string
}

var _ audit.BatchWriter = (*EventWriter)(nil)

func NewEventWriter(client *opensearch.Client, indexPrefix string) *EventWriter {
	if indexPrefix == "" {
		indexPrefix = "dispatch-events"
	}
	return &EventWriter{client: client, prefix: indexPrefix}
}

// Index returns the index an entry is written to.
func (w *EventWriter) Index(e audit.Entry) string {
	return w.prefix + "-" + e.At.UTC().Format("2006.01.02")
}

type bulkAction struct {
	Index struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	} `json:"index"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// StoreBatch implements audit.BatchWriter.
func (w *EventWriter) StoreBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range entries {
		var action bulkAction
		action.Index.Index = w.Index(e)
		action.Index.ID = e.ID
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("%w: encode action: %w", ErrBulkFailed, err)
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("%w: encode entry %s: %w", ErrBulkFailed, e.ID, err)
		}
	}

	res, err := w.client.Bulk(&body, w.client.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBulkFailed, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrBulkFailed, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrBulkFailed, err)
	}
	if !parsed.Errors {
		return nil
	}

	var failed []string
	for _, item := range parsed.Items {
		for _, r := range item {
			if r.Error != nil {
				failed = append(failed, fmt.Sprintf("%s: %s", r.ID, r.Error.Reason))
			}
		}
	}
	return fmt.Errorf("%w: %d of %d items: %s", ErrBulkFailed, len(failed), len(entries), strings.Join(failed, "; "))
}
