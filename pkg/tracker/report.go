package tracker

import (
	"context"
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
)

// Report is the externally visible delivery status of a request.
type Report struct {
	RequestID  string            `json:"request_id"`
	Type       string            `json:"type"`
	State      RequestState      `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Recipients []RecipientReport `json:"recipients"`
}

// RecipientReport groups the channels of one recipient. Outcome is set when
// the recipient produced no attempts at all.
type RecipientReport struct {
	RecipientID string          `json:"recipient_id"`
	Outcome     OutcomeKind     `json:"outcome,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	Channels    []ChannelReport `json:"channels,omitempty"`
}

// ChannelReport is the state of one recipient on one channel. State is empty
// when the channel ended without an attempt, for example on a render error.
type ChannelReport struct {
	Channel       channel.Name       `json:"channel"`
	State         State              `json:"state,omitempty"`
	Attempts      int                `json:"attempts"`
	Outcome       OutcomeKind        `json:"outcome,omitempty"`
	ErrorClass    channel.ErrorClass `json:"error_class,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	ProviderRef   string             `json:"provider_ref,omitempty"`
	NextAttemptAt *time.Time         `json:"next_attempt_at,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Done reports whether nothing under the request can change anymore.
func (r Report) Done() bool {
	return r.State == RequestCompleted || (r.State == RequestCancelled && !r.inFlight())
}

func (r Report) inFlight() bool {
	for _, rec := range r.Recipients {
		for _, ch := range rec.Channels {
			if ch.State != "" && !ch.State.Terminal() {
				return true
			}
		}
	}
	return false
}

// Recipient returns the report of one recipient.
func (r Report) Recipient(id string) (RecipientReport, bool) {
	for _, rec := range r.Recipients {
		if rec.RecipientID == id {
			return rec, true
		}
	}
	return RecipientReport{}, false
}

// Channel returns the report of one channel.
func (r RecipientReport) Channel(name channel.Name) (ChannelReport, bool) {
	for _, ch := range r.Channels {
		if ch.Channel == name {
			return ch, true
		}
	}
	return ChannelReport{}, false
}

// Status builds the delivery report of a request, listing recipients in
// submission order.
func (t *Tracker) Status(ctx context.Context, requestID string) (Report, error) {
	req, err := t.store.GetRequest(ctx, requestID)
	if err != nil {
		return Report{}, err
	}
	attempts, err := t.store.ListAttempts(ctx, requestID)
	if err != nil {
		return Report{}, err
	}
	outcomes, err := t.store.ListOutcomes(ctx, requestID)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		RequestID:  req.ID,
		Type:       req.Type,
		State:      req.State,
		CreatedAt:  req.CreatedAt,
		UpdatedAt:  req.UpdatedAt,
		Recipients: make([]RecipientReport, 0, len(req.Recipients)),
	}
	index := make(map[string]int, len(req.Recipients))
	for _, id := range req.Recipients {
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = len(rep.Recipients)
		rep.Recipients = append(rep.Recipients, RecipientReport{RecipientID: id})
	}
	recipient := func(id string) *RecipientReport {
		i, ok := index[id]
		if !ok {
			index[id] = len(rep.Recipients)
			rep.Recipients = append(rep.Recipients, RecipientReport{RecipientID: id})
			i = index[id]
		}
		return &rep.Recipients[i]
	}

	for _, a := range attempts {
		cr := ChannelReport{
			Channel:     a.Channel,
			State:       a.State,
			Attempts:    a.Sequence,
			Outcome:     a.Outcome,
			ErrorClass:  a.ErrorClass,
			LastError:   a.LastError,
			ProviderRef: a.ProviderRef,
			UpdatedAt:   a.UpdatedAt,
		}
		if a.State == StateQueued {
			next := a.NextAttemptAt
			cr.NextAttemptAt = &next
		}
		rec := recipient(a.RecipientID)
		rec.Channels = append(rec.Channels, cr)
	}
	for _, o := range outcomes {
		rec := recipient(o.RecipientID)
		if o.Channel == "" {
			rec.Outcome = o.Kind
			rec.Detail = o.Detail
			continue
		}
		rec.Channels = append(rec.Channels, ChannelReport{
			Channel:   o.Channel,
			Outcome:   o.Kind,
			LastError: o.Detail,
			UpdatedAt: o.At,
		})
	}
	return rep, nil
}
