package console

import "sync"

// Token identifies the session switch a panel fetch was issued under.
type Token struct {
	Epoch     uint64
	SessionID string
}

// Guard hands out tokens and tells current ones from stale ones. Every
// active-session change advances the epoch, so a fetch that was in flight
// across a switch or close can be recognised and dropped.
type Guard struct {
	mu      sync.Mutex
	epoch   uint64
	session string
}

// Issue returns a token for the current epoch.
func (g *Guard) Issue() Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Token{Epoch: g.epoch, SessionID: g.session}
}

// Advance records a new active session ("" for none) and returns its
// token. Every earlier token becomes stale.
func (g *Guard) Advance(sessionID string) Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	g.session = sessionID
	return Token{Epoch: g.epoch, SessionID: sessionID}
}

// Current reports whether t is still the latest token.
func (g *Guard) Current(t Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return t.Epoch == g.epoch && t.SessionID == g.session
}
