package notification

import (
	"bytes"
	"fmt"
	"log/slog"
	"text/template"
)

// Template holds the subject line and body template for one notice type.
type Template struct {
	Subject string
	Body    string
}

// Manager renders notice templates and hands them to the registered notifier.
// Delivery is fire-and-forget relative to the request that triggered it: use
// Dispatch from request paths, which never propagates a send failure to the
// caller.
type Manager struct {
	BaseURL   string
	notifier  Notifier
	templates map[NoticeType]Template
}

// NewManager creates a manager delivering through the given notifier.
func NewManager(baseURL string, notifier Notifier) *Manager {
	return &Manager{
		BaseURL:   baseURL,
		notifier:  notifier,
		templates: make(map[NoticeType]Template),
	}
}

// Register adds or replaces the template for a notice type.
func (m *Manager) Register(notice NoticeType, tmpl Template) error {
	if notice == "" || tmpl.Body == "" {
		return fmt.Errorf("notice type and body template cannot be empty")
	}
	m.templates[notice] = tmpl
	return nil
}

// Send renders the notice template and delivers it synchronously.
func (m *Manager) Send(notice NoticeType, data NotificationData) error {
	tmpl, ok := m.templates[notice]
	if !ok {
		return fmt.Errorf("no template registered for notice: %s", notice)
	}

	body, err := renderTemplate(string(notice)+".body", tmpl.Body, data.Data)
	if err != nil {
		return fmt.Errorf("failed to render body for %s: %w", notice, err)
	}
	subject, err := renderTemplate(string(notice)+".subject", tmpl.Subject, data.Data)
	if err != nil {
		return fmt.Errorf("failed to render subject for %s: %w", notice, err)
	}

	data.Subject = subject
	data.Body = body
	return m.notifier.Send(notice, data)
}

// Dispatch delivers the notice on its own goroutine. Failures are logged and
// never surfaced to the caller: a send failure must not fail the registration
// or reset response that triggered it.
func (m *Manager) Dispatch(notice NoticeType, data NotificationData) {
	go func() {
		if err := m.Send(notice, data); err != nil {
			slog.Error("Failed to send notification", "notice", notice, "to", data.To, "err", err)
		}
	}()
}

func renderTemplate(name, text string, data map[string]string) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
