// Package mailer is the transport boundary. The engine only needs a Sender;
// whether mail leaves over SMTP or an HTTP API is invisible to the
// dispatcher.
package mailer

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

// Message is one fully personalized email ready for transport.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	FromAddress string
	FromName    string
	ReplyTo     string
}

// Sender delivers a single message using the credentials of the given send
// configuration. Implementations must honor ctx cancellation; a timeout is
// reported as an ordinary error and follows the retry path.
type Sender interface {
	Send(ctx context.Context, cfg *model.SendConfiguration, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, cfg *model.SendConfiguration, msg Message) error

func (f SenderFunc) Send(ctx context.Context, cfg *model.SendConfiguration, msg Message) error {
	return f(ctx, cfg, msg)
}

// MockSender fakes transport for dry runs, failing a configurable fraction
// of sends.
type MockSender struct {
	FailureRate float64
}

func (m *MockSender) Send(_ context.Context, _ *model.SendConfiguration, _ Message) error {
	if rand.Float64() < m.FailureRate {
		return fmt.Errorf("mock send failed")
	}
	return nil
}

var (
	_ Sender = (SenderFunc)(nil)
	_ Sender = (*MockSender)(nil)
)
