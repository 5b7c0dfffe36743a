// Package identity verifies phone-number ownership with one-time codes.
// It is the pluggable identity boundary: the rest of the service treats
// a verified identity as opaque.
package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// CodeSender delivers a one-time code to a phone number. Production
// wires an SMS gateway here; development logs the code.
type CodeSender interface {
	Send(ctx context.Context, phoneNumber, code string) error
}

// LogSender writes codes to the log instead of sending them.
type LogSender struct {
	Logger zerolog.Logger
}

// Send logs the code.
func (s LogSender) Send(ctx context.Context, phoneNumber, code string) error {
	s.Logger.Info().
		Str("phone_number", phoneNumber).
		Str("code", code).
		Msg("otp issued")
	return nil
}

type otpRecord struct {
	hash      []byte
	expiresAt time.Time
}

// Service issues and verifies one-time codes. Codes are ephemeral and
// kept only in memory; only a bcrypt hash is retained.
type Service struct {
	mu     sync.Mutex
	codes  map[string]otpRecord
	sender CodeSender
	ttl    time.Duration
}

// NewService creates an OTP service with the given sender and code TTL.
func NewService(sender CodeSender, ttl time.Duration) *Service {
	return &Service{
		codes:  make(map[string]otpRecord),
		sender: sender,
		ttl:    ttl,
	}
}

// Issue generates a fresh code for the phone number, stores its hash and
// hands the code to the sender. Reissuing replaces any previous code.
func (s *Service) Issue(ctx context.Context, phoneNumber string) error {
	code, err := generateCode()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.codes[phoneNumber] = otpRecord{hash: hash, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return s.sender.Send(ctx, phoneNumber, code)
}

// Verify checks a code against the stored hash. A successful verify
// consumes the code.
func (s *Service) Verify(ctx context.Context, phoneNumber, code string) bool {
	s.mu.Lock()
	rec, ok := s.codes[phoneNumber]
	s.mu.Unlock()

	if !ok || time.Now().After(rec.expiresAt) {
		return false
	}
	if bcrypt.CompareHashAndPassword(rec.hash, []byte(code)) != nil {
		return false
	}

	s.mu.Lock()
	delete(s.codes, phoneNumber)
	s.mu.Unlock()
	return true
}

// generateCode returns a 6-digit numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
