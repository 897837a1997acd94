package certificate

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcertificates/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestRenderer(t *testing.T) (*renderer, string) {
	t.Helper()
	dir := t.TempDir()
	r, err := NewRenderer(Config{OutputDir: dir, PublicBaseURL: "https://certs.example.com/files"}, testLogger)
	require.NoError(t, err)
	impl := r.(*renderer)
	impl.now = func() time.Time { return time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC) }
	return impl, dir
}

func TestRenderer_Render(t *testing.T) {
	r, dir := newTestRenderer(t)
	desc := "Annual Go conference"
	event := &domain.Event{ID: "ev-1", Name: "GopherCon <2025>", Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), Description: &desc}
	participant := &domain.Participant{ID: "p-1", Name: "Ada Lovelace"}

	for _, tt := range []struct {
		templateType string
		title        string
	}{
		{domain.TemplateParticipation, "Certificate of Participation"},
		{domain.TemplateCompletion, "Certificate of Completion"},
		{domain.TemplateSpeaker, "Certificate of Appreciation"},
	} {
		t.Run(tt.templateType, func(t *testing.T) {
			out, err := r.Render(context.Background(), participant, event, tt.templateType)
			require.NoError(t, err)

			assert.Equal(t, filepath.Join(dir, "ev-1", "p-1.html"), out.FilePath)
			assert.Equal(t, "https://certs.example.com/files/ev-1/p-1.html", out.PublicURL)

			body, err := os.ReadFile(out.FilePath)
			require.NoError(t, err)
			html := string(body)
			assert.Contains(t, html, tt.title)
			assert.Contains(t, html, "Ada Lovelace")
			assert.Contains(t, html, "GopherCon &lt;2025&gt;")
			assert.Contains(t, html, "March 10, 2025")
			assert.Contains(t, html, "Annual Go conference")
			assert.Contains(t, html, Serial("ev-1", "p-1"))
		})
	}

	entries, err := os.ReadDir(filepath.Join(dir, "ev-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestRenderer_UnknownTemplateType(t *testing.T) {
	r, _ := newTestRenderer(t)
	_, err := r.Render(context.Background(), &domain.Participant{ID: "p-1"}, &domain.Event{ID: "ev-1"}, "diploma")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestRenderer_CancelledContext(t *testing.T) {
	r, _ := newTestRenderer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Render(ctx, &domain.Participant{ID: "p-1"}, &domain.Event{ID: "ev-1"}, domain.TemplateParticipation)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRenderer_RequiresOutputDir(t *testing.T) {
	_, err := NewRenderer(Config{}, testLogger)
	assert.Error(t, err)
}

func TestSerial_IsStable(t *testing.T) {
	a := Serial("ev-1", "p-1")
	assert.Equal(t, a, Serial("ev-1", "p-1"))
	assert.NotEqual(t, a, Serial("ev-1", "p-2"))
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}
