package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// captureSender records issued codes so tests can verify them.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (s *captureSender) Send(ctx context.Context, phoneNumber, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phoneNumber] = code
	return nil
}

func (s *captureSender) codeFor(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

func TestIssueAndVerify(t *testing.T) {
	req := require.New(t)
	sender := newCaptureSender()
	svc := NewService(sender, time.Minute)
	ctx := context.Background()

	req.NoError(svc.Issue(ctx, "+15550001"))
	code := sender.codeFor("+15550001")
	req.Len(code, 6)

	req.True(svc.Verify(ctx, "+15550001", code))

	// a successful verify consumes the code
	req.False(svc.Verify(ctx, "+15550001", code))
}

func TestVerifyWrongCode(t *testing.T) {
	req := require.New(t)
	sender := newCaptureSender()
	svc := NewService(sender, time.Minute)
	ctx := context.Background()

	req.NoError(svc.Issue(ctx, "+15550001"))
	req.False(svc.Verify(ctx, "+15550001", "000000x"))
	req.False(svc.Verify(ctx, "+15550002", sender.codeFor("+15550001")))
}

func TestVerifyExpiredCode(t *testing.T) {
	req := require.New(t)
	sender := newCaptureSender()
	svc := NewService(sender, -time.Second)
	ctx := context.Background()

	req.NoError(svc.Issue(ctx, "+15550001"))
	req.False(svc.Verify(ctx, "+15550001", sender.codeFor("+15550001")))
}

func TestReissueReplacesCode(t *testing.T) {
	req := require.New(t)
	sender := newCaptureSender()
	svc := NewService(sender, time.Minute)
	ctx := context.Background()

	req.NoError(svc.Issue(ctx, "+15550001"))
	first := sender.codeFor("+15550001")
	req.NoError(svc.Issue(ctx, "+15550001"))
	second := sender.codeFor("+15550001")

	if first != second {
		req.False(svc.Verify(ctx, "+15550001", first))
	}
	req.True(svc.Verify(ctx, "+15550001", second))
}
