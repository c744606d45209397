/*
Package pow implements the Proof-of-Work gate placed in front of account sign-up.

A client fetches a nonce, searches for a counter whose SHA256(nonce+counter) hex
digest starts with the configured number of zeros, and trades the solution for a
short-lived single-use proof token that the register endpoint consumes.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey carries the proof token on the register request.
	TokenHeaderKey = "X-PoW-Token"
	// TokenQueryParam is the fallback for clients that cannot set headers.
	TokenQueryParam = "pow_token"

	NonceTTL = 5 * time.Minute
	ProofTTL = 30 * time.Second

	sweepInterval = time.Minute
)

var (
	ErrInsufficientWork = errors.New("pow: proof does not meet difficulty")
	ErrUnknownNonce     = errors.New("pow: nonce expired or unknown")
)

// expiringSet holds single-use keys with a deadline. Callers hold the manager lock.
type expiringSet map[string]time.Time

func (s expiringSet) put(ttl time.Duration, now time.Time) string {
	key := uuid.NewString()
	s[key] = now.Add(ttl)
	return key
}

// take removes key and reports whether it was still live.
func (s expiringSet) take(key string, now time.Time) bool {
	deadline, ok := s[key]
	if !ok {
		return false
	}
	delete(s, key)
	return !now.After(deadline)
}

func (s expiringSet) prune(now time.Time) {
	for key, deadline := range s {
		if now.After(deadline) {
			delete(s, key)
		}
	}
}

// PoWManager tracks outstanding nonces and issued proof tokens. It is safe for concurrent use.
type PoWManager struct {
	difficulty int
	now        func() time.Time

	mu     sync.Mutex
	nonces expiringSet
	proofs expiringSet
}

// NewPoWManager creates a manager for the given difficulty. A difficulty of zero
// disables the gate. Expired entries are swept until ctx is done.
func NewPoWManager(ctx context.Context, difficulty int) *PoWManager {
	m := &PoWManager{
		difficulty: difficulty,
		now:        time.Now,
		nonces:     expiringSet{},
		proofs:     expiringSet{},
	}
	go m.sweepLoop(ctx)
	return m
}

// Difficulty returns the number of leading hex zeros required.
func (m *PoWManager) Difficulty() int { return m.difficulty }

// Enabled reports whether callers must present a proof token.
func (m *PoWManager) Enabled() bool { return m.difficulty > 0 }

// GenerateNonce issues a fresh challenge nonce.
func (m *PoWManager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonces.put(NonceTTL, m.now())
}

// Meets reports whether counter solves nonce at difficulty.
func Meets(nonce, counter string, difficulty int) bool {
	sum := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(sum[:]), strings.Repeat("0", difficulty))
}

// ValidateProof checks a solution, consumes the nonce and returns a proof token.
// A failed solution leaves the nonce in place.
func (m *PoWManager) ValidateProof(nonce, counter string) (string, error) {
	if !Meets(nonce, counter, m.difficulty) {
		return "", ErrInsufficientWork
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.nonces.take(nonce, now) {
		return "", ErrUnknownNonce
	}
	return m.proofs.put(ProofTTL, now), nil
}

// ConsumeProofToken reports whether the request carries a live proof token and
// invalidates it. Always true when the gate is disabled.
func (m *PoWManager) ConsumeProofToken(r *http.Request) bool {
	if !m.Enabled() {
		return true
	}

	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get(TokenQueryParam)
	}
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.proofs.take(token, m.now())
}

func (m *PoWManager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.nonces.prune(now)
	m.proofs.prune(now)
}

func (m *PoWManager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}
