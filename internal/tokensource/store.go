package tokensource

// Store holds at most one service token. It has no expiry policy of its own
// beyond what ServiceToken reports and performs no locking.
type Store struct {
	token *ServiceToken
}

// Load returns the cached token and whether one is present.
func (s *Store) Load() (ServiceToken, bool) {
	if s.token == nil {
		return ServiceToken{}, false
	}
	return *s.token, true
}

// Replace swaps in a new token.
func (s *Store) Replace(token ServiceToken) {
	s.token = &token
}

// Clear drops the cached token.
func (s *Store) Clear() {
	s.token = nil
}
