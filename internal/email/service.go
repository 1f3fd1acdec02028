// Package email sends the account mail notedesk needs: a welcome note on
// sign-up and password reset links.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/kuitang/notedesk/internal/logutil"
	"github.com/kuitang/notedesk/internal/obs"
)

// EmailService delivers one templated message to one recipient.
type EmailService interface {
	Send(ctx context.Context, to, templateName string, data any) error
}

// SentEmail is one message captured by MockEmailService.
type SentEmail struct {
	To       string
	Template string
	Data     any
	Subject  string
}

// MockEmailService records mail in memory. With an outbox directory it also
// drops each message there as JSON, which is how reset links reach a
// developer running with --no-email.
type MockEmailService struct {
	mu        sync.Mutex
	Emails    []SentEmail
	outboxDir string
}

// NewMockEmailService writes to MOCK_EMAIL_OUTBOX_DIR, defaulting to a
// directory under the system temp dir.
func NewMockEmailService() *MockEmailService {
	dir := os.Getenv("MOCK_EMAIL_OUTBOX_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "notedesk-mock-email-outbox")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		obs.Pkg("email").Warn("outbox_dir_unavailable", "dir", dir, "error", err)
		dir = ""
	}
	return &MockEmailService{outboxDir: dir}
}

// NewCapturingEmailService records mail in memory only.
func NewCapturingEmailService() *MockEmailService {
	return &MockEmailService{}
}

func (m *MockEmailService) Send(ctx context.Context, to, templateName string, data any) error {
	msg, err := Render(templateName, data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Emails = append(m.Emails, SentEmail{To: to, Template: templateName, Data: data, Subject: msg.Subject})

	entry := outboxEntry{
		Seq:      len(m.Emails),
		To:       to,
		Template: templateName,
		Subject:  msg.Subject,
		Text:     msg.Text,
		SentAt:   time.Now().UTC(),
	}
	if d, ok := data.(PasswordResetData); ok {
		entry.Link = d.Link
	}
	obs.From(ctx).With("pkg", "email").Info("mock_email_sent",
		"to", logutil.MaskEmail(to),
		"template", templateName,
		"link", entry.Link,
	)
	return m.writeOutbox(entry)
}

// LastEmail is the newest captured message, or the zero value.
func (m *MockEmailService) LastEmail() SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Emails) == 0 {
		return SentEmail{}
	}
	return m.Emails[len(m.Emails)-1]
}

func (m *MockEmailService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Emails)
}

type outboxEntry struct {
	Seq      int       `json:"seq"`
	To       string    `json:"to"`
	Template string    `json:"template"`
	Subject  string    `json:"subject"`
	Link     string    `json:"link,omitempty"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._@-]+`)

// writeOutbox renames into place so a watcher never reads a partial file.
func (m *MockEmailService) writeOutbox(e outboxEntry) error {
	if m.outboxDir == "" {
		return nil
	}
	payload, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	name := fmt.Sprintf("%d-%06d-%s-%s.json", e.SentAt.UnixNano(), e.Seq,
		unsafeFileChars.ReplaceAllString(e.Template, "_"), unsafeFileChars.ReplaceAllString(e.To, "_"))
	final := filepath.Join(m.outboxDir, name)
	if err := os.WriteFile(final+".tmp", payload, 0o644); err != nil {
		return fmt.Errorf("write outbox entry: %w", err)
	}
	if err := os.Rename(final+".tmp", final); err != nil {
		_ = os.Remove(final + ".tmp")
		return fmt.Errorf("publish outbox entry: %w", err)
	}
	return nil
}
