package preference_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/preference"
)

func supported() []channel.Name {
	return []channel.Name{channel.Email, channel.SMS, channel.Push, channel.InApp}
}

func newSource() *preference.MemorySource {
	src := preference.NewMemorySource()
	src.Put(preference.Profile{
		RecipientID: "alice",
		Addresses: map[channel.Name]string{
			channel.Email: "alice@example.com",
			channel.SMS:   "+15550001",
		},
		Defaults: map[channel.Name]bool{channel.Email: true, channel.SMS: true, channel.InApp: true},
		Types: map[string]map[channel.Name]bool{
			"comment": {channel.SMS: false},
		},
	})
	src.Put(preference.Profile{
		RecipientID: "bob",
		OptOut:      true,
		Addresses:   map[channel.Name]string{channel.Email: "bob@example.com"},
		Defaults:    map[channel.Name]bool{channel.Email: true},
	})
	src.Put(preference.Profile{
		RecipientID: "carol",
		Defaults:    map[channel.Name]bool{channel.Push: true},
	})
	return src
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	r := preference.NewResolver(newSource(), supported)
	ctx := context.Background()

	tests := []struct {
		name      string
		recipient string
		typ       string
		requested []channel.Name
		want      []channel.Name
		optedOut  bool
	}{
		{"all supported when none requested", "alice", "welcome", nil, []channel.Name{channel.Email, channel.SMS, channel.InApp}, false},
		{"per-type override", "alice", "comment", nil, []channel.Name{channel.Email, channel.InApp}, false},
		{"intersection keeps requested order", "alice", "welcome", []channel.Name{channel.SMS, channel.Push, channel.Email}, []channel.Name{channel.SMS, channel.Email}, false},
		{"duplicates collapse", "alice", "welcome", []channel.Name{channel.Email, channel.Email}, []channel.Name{channel.Email}, false},
		{"global opt-out wins", "bob", "welcome", []channel.Name{channel.Email}, nil, true},
		{"enabled without address", "carol", "welcome", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := r.Resolve(ctx, tt.recipient, tt.typ, tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Channels)
			assert.Equal(t, tt.optedOut, res.OptedOut)
			assert.Equal(t, len(tt.want) > 0, res.Eligible())
			for _, ch := range res.Channels {
				assert.NotEmpty(t, res.Addresses[ch])
			}
		})
	}
}

func TestResolver_InAppAddressDefaultsToRecipient(t *testing.T) {
	t.Parallel()

	r := preference.NewResolver(newSource(), supported)
	res, err := r.Resolve(context.Background(), "alice", "welcome", []channel.Name{channel.InApp})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Addresses[channel.InApp])
}

func TestResolver_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown recipient", func(t *testing.T) {
		t.Parallel()
		r := preference.NewResolver(newSource(), supported)
		_, err := r.Resolve(context.Background(), "mallory", "welcome", nil)
		assert.ErrorIs(t, err, preference.ErrRecipientNotFound)
	})

	t.Run("source failure", func(t *testing.T) {
		t.Parallel()
		src := preference.SourceFunc(func(context.Context, string, string) (preference.RecipientPreference, error) {
			return preference.RecipientPreference{}, errors.New("timeout")
		})
		r := preference.NewResolver(src, supported)
		_, err := r.Resolve(context.Background(), "alice", "welcome", nil)
		assert.ErrorIs(t, err, preference.ErrSourceUnavailable)
		assert.NotErrorIs(t, err, preference.ErrRecipientNotFound)
	})
}

func TestMemorySource_Mutations(t *testing.T) {
	t.Parallel()

	src := newSource()
	ctx := context.Background()

	require.NoError(t, src.SetOptOut("alice", true))
	p, err := src.Preferences(ctx, "alice", "welcome")
	require.NoError(t, err)
	assert.True(t, p.OptOut)
	assert.False(t, p.Enabled(channel.Email))

	require.NoError(t, src.SetOptOut("alice", false))
	require.NoError(t, src.SetChannel("alice", "welcome", channel.Email, false))
	p, err = src.Preferences(ctx, "alice", "welcome")
	require.NoError(t, err)
	assert.False(t, p.Enabled(channel.Email))

	p.Channels[channel.Push] = true
	fresh, _ := src.Preferences(ctx, "alice", "welcome")
	assert.False(t, fresh.Channels[channel.Push], "returned maps must be copies")

	assert.ErrorIs(t, src.SetOptOut("nobody", true), preference.ErrRecipientNotFound)
	src.Delete("alice")
	_, err = src.Preferences(ctx, "alice", "welcome")
	assert.ErrorIs(t, err, preference.ErrRecipientNotFound)
}

func TestRecipientPreference_Clone(t *testing.T) {
	t.Parallel()

	p := preference.RecipientPreference{Channels: map[channel.Name]bool{channel.Email: true}}
	c := p.Clone()
	c.Channels[channel.Email] = false
	assert.True(t, p.Channels[channel.Email])
}
