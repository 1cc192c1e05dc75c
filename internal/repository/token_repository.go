package repository

import (
	"sort"
	"sync"
	"time"

	"signalbot-backend/internal/domain"
)

// TokenRepository manages device tokens for push notifications
type TokenRepository struct {
	tokens map[string]domain.DeviceToken // token -> DeviceToken
	mu     sync.RWMutex
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		tokens: make(map[string]domain.DeviceToken),
	}
}

// RegisterToken adds or updates a device token
func (r *TokenRepository) RegisterToken(token, platform string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tokens[token] = domain.DeviceToken{
		Token:     token,
		Platform:  platform,
		CreatedAt: at,
	}
}

// UnregisterToken removes a device token and reports whether it was known.
func (r *TokenRepository) UnregisterToken(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.tokens[token]
	delete(r.tokens, token)
	return ok
}

// Tokens returns all registered token strings, sorted.
func (r *TokenRepository) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]string, 0, len(r.tokens))
	for token := range r.tokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// Prune drops tokens the push service reported as no longer registered.
func (r *TokenRepository) Prune(tokens []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range tokens {
		if _, ok := r.tokens[t]; ok {
			delete(r.tokens, t)
			n++
		}
	}
	return n
}

func (r *TokenRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tokens)
}
