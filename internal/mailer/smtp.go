package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"regexp"
	"strings"
	"sync"

	"github.com/jordan-wright/email"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// endpoint holds the dial parameters derived from a send configuration.
// Cached per configuration id so auth and TLS state are built once.
type endpoint struct {
	addr      string
	auth      smtp.Auth
	tlsConfig *tls.Config
	useSSL    bool
	useTLS    bool
}

// SMTPSender delivers mail over SMTP using each send configuration's own
// credentials. It keeps an endpoint registry keyed by configuration id;
// Evict must be called when a configuration's credentials change.
type SMTPSender struct {
	mu        sync.Mutex
	endpoints map[int]*endpoint
}

func NewSMTPSender() *SMTPSender {
	return &SMTPSender{endpoints: make(map[int]*endpoint)}
}

func (s *SMTPSender) endpointFor(cfg *model.SendConfiguration) *endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.endpoints[cfg.ID]; ok {
		return ep
	}
	ep := &endpoint{
		addr:   fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		useSSL: cfg.UseSSL,
		useTLS: cfg.UseTLS,
		tlsConfig: &tls.Config{
			ServerName: cfg.SMTPHost,
			MinVersion: tls.VersionTLS12,
		},
	}
	if cfg.SMTPUsername != "" {
		ep.auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	s.endpoints[cfg.ID] = ep
	return ep
}

// Evict drops the cached endpoint for a configuration.
func (s *SMTPSender) Evict(configID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.endpoints, configID)
}

func (s *SMTPSender) Send(ctx context.Context, cfg *model.SendConfiguration, msg Message) error {
	ep := s.endpointFor(cfg)

	e := email.NewEmail()
	e.From = formatAddress(msg.FromName, msg.FromAddress)
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	if msg.ReplyTo != "" {
		e.ReplyTo = []string{msg.ReplyTo}
	}
	text := msg.Text
	if text == "" {
		text = StripTags(msg.HTML)
	}
	e.Text = []byte(text)
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}

	// jordan-wright/email has no context support; run the blocking send in
	// a goroutine and abandon it on deadline. A timed-out send counts as a
	// transport failure and retries.
	done := make(chan error, 1)
	go func() {
		switch {
		case ep.useSSL:
			done <- e.SendWithTLS(ep.addr, ep.auth, ep.tlsConfig)
		case ep.useTLS:
			done <- e.SendWithStartTLS(ep.addr, ep.auth, ep.tlsConfig)
		default:
			done <- e.Send(ep.addr, ep.auth)
		}
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
)

// StripTags derives a crude plain-text fallback from HTML content for
// campaigns that carry no text body.
func StripTags(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var _ Sender = (*SMTPSender)(nil)
