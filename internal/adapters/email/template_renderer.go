package email

import (
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	texttemplate "text/template"

	"eventcertificates/internal/domain"
)

//go:embed templates/*
var templateFS embed.FS

// An email template "name" is three files: name_subject.txt, name.txt and name.html.
const (
	subjectSuffix = "_subject.txt"
	textSuffix    = ".txt"
	htmlSuffix    = ".html"
)

// templateRenderer implements domain.EmailTemplateRenderer. All templates are parsed once;
// a field the data does not carry fails the render instead of printing "<no value>".
type templateRenderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// NewTemplateRenderer returns the renderer for the embedded certificate emails. The templates
// ship inside the binary, so a parse failure is a build defect and panics.
func NewTemplateRenderer() domain.EmailTemplateRenderer {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	r, err := newTemplateRenderer(sub)
	if err != nil {
		panic(err)
	}
	return r
}

func newTemplateRenderer(fsys fs.FS) (*templateRenderer, error) {
	html, err := htmltemplate.New("email").Option("missingkey=error").ParseFS(fsys, "*"+htmlSuffix)
	if err != nil {
		return nil, fmt.Errorf("parse html email templates: %w", err)
	}
	text, err := texttemplate.New("email").Option("missingkey=error").ParseFS(fsys, "*"+textSuffix)
	if err != nil {
		return nil, fmt.Errorf("parse text email templates: %w", err)
	}
	return &templateRenderer{html: html, text: text}, nil
}

// Render executes the subject, HTML and text parts of the named email (e.g. "certificate").
// The subject is folded onto one line. A missing part yields domain.ErrTemplateNotFound.
func (r *templateRenderer) Render(name string, data any) (subject, htmlBody, textBody string, err error) {
	subjectTmpl := r.text.Lookup(name + subjectSuffix)
	textTmpl := r.text.Lookup(name + textSuffix)
	htmlTmpl := r.html.Lookup(name + htmlSuffix)
	if subjectTmpl == nil || textTmpl == nil || htmlTmpl == nil {
		return "", "", "", fmt.Errorf("email %q: %w", name, domain.ErrTemplateNotFound)
	}

	var buf strings.Builder
	if err := subjectTmpl.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = strings.Join(strings.Fields(buf.String()), " ")

	buf.Reset()
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}
	htmlBody = buf.String()

	buf.Reset()
	if err := textTmpl.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}
	return subject, htmlBody, buf.String(), nil
}
