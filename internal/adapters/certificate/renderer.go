package certificate

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"eventcertificates/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// serialNamespace scopes certificate serial numbers.
var serialNamespace = uuid.MustParse("8f2b6c1e-4d3a-5b7c-9e0f-1a2b3c4d5e6f")

// Config holds the output location of rendered certificates.
type Config struct {
	OutputDir     string
	PublicBaseURL string
}

// Data is what a certificate template sees.
type Data struct {
	Serial          string
	ParticipantName string
	EventName       string
	EventDate       string
	Description     string
	IssuedAt        string
}

type renderer struct {
	outputDir string
	baseURL   *url.URL
	templates map[string]*template.Template
	logger    *slog.Logger
	now       func() time.Time
}

// NewRenderer parses the embedded certificate templates, one per template type, and returns
// a CertificateRenderer writing to <OutputDir>/<eventID>/<participantID>.html.
func NewRenderer(cfg Config, logger *slog.Logger) (domain.CertificateRenderer, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("certificate output directory is required")
	}
	base, err := url.Parse(cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse public base url: %w", err)
	}
	templates := make(map[string]*template.Template, 3)
	for _, name := range []string{domain.TemplateParticipation, domain.TemplateCompletion, domain.TemplateSpeaker} {
		t, err := template.New(name + ".html").Option("missingkey=error").ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		templates[name] = t
	}
	return &renderer{
		outputDir: cfg.OutputDir,
		baseURL:   base,
		templates: templates,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Serial returns the stable certificate serial of a participant at an event.
func Serial(eventID, participantID string) string {
	return uuid.NewSHA1(serialNamespace, []byte(eventID+"/"+participantID)).String()
}

func (r *renderer) Render(ctx context.Context, participant *domain.Participant, event *domain.Event, templateType string) (*domain.RenderedCertificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := r.templates[templateType]
	if !ok {
		return nil, fmt.Errorf("%q: %w", templateType, domain.ErrTemplateNotFound)
	}
	if participant.ID == "" || event.ID == "" {
		return nil, errors.New("participant and event ids are required")
	}

	data := Data{
		Serial:          Serial(event.ID, participant.ID),
		ParticipantName: participant.Name,
		EventName:       event.Name,
		EventDate:       event.Date.Format("January 2, 2006"),
		IssuedAt:        r.now().Format("January 2, 2006"),
	}
	if event.Description != nil {
		data.Description = *event.Description
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute %s template: %w", templateType, err)
	}

	dir := filepath.Join(r.outputDir, filepath.Base(event.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	name := filepath.Base(participant.ID) + ".html"
	path := filepath.Join(dir, name)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return nil, err
	}
	r.logger.Debug("certificate rendered", "event_id", event.ID, "participant_id", participant.ID, "path", path)

	return &domain.RenderedCertificate{
		FilePath:  path,
		PublicURL: r.baseURL.JoinPath(event.ID, name).String(),
	}, nil
}

// writeFileAtomic writes through a temp file in the same directory so a reader never sees a
// partial certificate.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cert-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close certificate: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move certificate into place: %w", err)
	}
	return nil
}
