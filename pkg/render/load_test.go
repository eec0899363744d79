package render_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/channel"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/render"
)

const catalogue = `templates:
  - name: comment
    required: [author]
    push:
      title: "New comment"
      body: "{{.author}} replied"
  - name: welcome
    required: [name]
    sms:
      text: "Hi {{.name}}, custom welcome"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestParse(t *testing.T) {
	t.Parallel()

	ts, err := render.Parse([]byte(catalogue))
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, "comment", ts[0].Name)
	assert.Equal(t, []string{"author"}, ts[0].Required)
	require.NotNil(t, ts[0].Push)

	_, err = render.Parse([]byte("templates:\n  - name: x\n    fax: {}\n"))
	assert.ErrorIs(t, err, render.ErrInvalidTemplate)
}

func TestRenderer_LoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	writeFile(t, path, catalogue)

	r := render.New()
	require.NoError(t, r.LoadFile(path, render.Builtin()...))
	assert.Equal(t, []string{"2fa_enabled", "comment", "password_reset", "verify_email", "welcome"}, r.Names())

	p, err := r.Render("welcome", channel.SMS, map[string]any{"name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, channel.SMSPayload{Text: "Hi Ann, custom welcome"}, p)

	_, err = r.Render("welcome", channel.Email, map[string]any{"name": "Ann", "app_name": "Acme"})
	assert.ErrorIs(t, err, render.ErrRender, "file entry replaces the builtin entirely")

	writeFile(t, path, "templates:\n  - name: bad\n    sms:\n      text: \"{{.x\"\n")
	require.Error(t, r.LoadFile(path))
	assert.True(t, r.Has("comment"), "failed reload keeps previous templates")

	require.Error(t, r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestRenderer_Watch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	writeFile(t, path, "templates:\n  - name: first\n    sms:\n      text: one\n")

	r := render.New()
	require.NoError(t, r.LoadFile(path))
	require.True(t, r.Has("first"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, path, logger.Discard()) }()

	// Give the watcher time to register before changing the file.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "templates:\n  - name: second\n    sms:\n      text: two\n")

	assert.Eventually(t, func() bool { return r.Has("second") && !r.Has("first") },
		5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	r := render.New()
	require.NoError(t, r.Replace(render.Builtin()))

	tests := []struct {
		name string
		ch   channel.Name
		data map[string]any
	}{
		{"welcome", channel.Email, map[string]any{"name": "Ann", "app_name": "Acme"}},
		{"welcome", channel.InApp, map[string]any{"name": "Ann", "app_name": "Acme"}},
		{"verify_email", channel.Email, map[string]any{"name": "Ann", "verify_url": "https://acme.test/v", "expires_in": "24 hours"}},
		{"password_reset", channel.Email, map[string]any{"name": "Ann", "reset_url": "https://acme.test/r", "expires_in": "1 hour"}},
		{"password_reset", channel.SMS, map[string]any{"name": "Ann", "reset_url": "https://acme.test/r", "expires_in": "1 hour"}},
		{"2fa_enabled", channel.Push, map[string]any{"name": "Ann"}},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+string(tt.ch), func(t *testing.T) {
			t.Parallel()
			p, err := r.Render(tt.name, tt.ch, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.ch, p.Channel())
		})
	}

	_, err := r.Render("verify_email", channel.Email, map[string]any{"name": "Ann"})
	assert.ErrorIs(t, err, render.ErrRender)
}
