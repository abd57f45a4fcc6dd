package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ErrStaleQuote is returned by a Signer when the chain rejects a submission
// because the quoted transaction expired before landing. Stale quotes are
// retryable with a fresh quote; everything else is terminal for the attempt.
var ErrStaleQuote = errors.New("wallet: quote expired before submission")

// Signer is the opaque signing capability. Key derivation and storage live
// outside this core; the trading side only ever sees sign-and-submit.
type Signer interface {
	// SignAndSubmit signs the serialized transaction and submits it,
	// returning the confirmed signature.
	SignAndSubmit(ctx context.Context, unsignedTx string) (solana.Signature, error)
}

// ---------------------------------------------------------------------------
// Stub signer (testing and dry runs)
// ---------------------------------------------------------------------------

// StubSigner is a deterministic in-memory Signer. It can be scripted to fail
// the next N submissions with a chosen error, which is how gateway retry
// behavior is exercised in tests.
type StubSigner struct {
	mu        sync.Mutex
	calls     int
	failNext  int
	failErr   error
	submitted []string
}

// NewStubSigner creates a stub signer that confirms everything.
func NewStubSigner() *StubSigner {
	return &StubSigner{}
}

// FailNext makes the next n submissions fail with err.
func (s *StubSigner) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
	s.failErr = err
}

// Calls returns the number of SignAndSubmit invocations.
func (s *StubSigner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Submitted returns the transactions submitted so far.
func (s *StubSigner) Submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.submitted))
	copy(out, s.submitted)
	return out
}

func (s *StubSigner) SignAndSubmit(_ context.Context, unsignedTx string) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.failNext > 0 {
		s.failNext--
		err := s.failErr
		if err == nil {
			err = fmt.Errorf("stub: simulated signer failure")
		}
		return "", err
	}

	s.submitted = append(s.submitted, unsignedTx)
	return solana.Signature(fmt.Sprintf("stub-sig-%d-%d", s.calls, time.Now().UnixNano())), nil
}
