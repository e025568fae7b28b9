package syncclient

import (
	"sort"
	"sync"
	"time"

	"itinerary-collab-be/pkg/protocol"
)

// Peer is another editor's selection overlay.
type Peer struct {
	UserID      string
	DisplayName string
	Color       string
	From        int
	To          int
}

// PresenceSet tracks the overlays of the other editors, most recent message
// wins. It never touches document state.
type PresenceSet struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

func NewPresenceSet() *PresenceSet {
	return &PresenceSet{peers: make(map[string]Peer)}
}

// Handle applies init, presence and userLeft messages and reports whether
// the set changed. Other messages are ignored.
func (p *PresenceSet) Handle(msg protocol.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Init:
		p.peers = make(map[string]Peer, len(m.PresentUsers))
		for _, u := range m.PresentUsers {
			p.setLocked(u.UserID, u.DisplayName, u.Color, u.From, u.To)
		}
		return true
	case protocol.Presence:
		return p.setLocked(m.UserID, m.DisplayName, m.Color, m.From, m.To)
	case protocol.UserLeft:
		_, ok := p.peers[m.UserID]
		delete(p.peers, m.UserID)
		return ok
	}
	return false
}

// setLocked stores a selection; an empty selection clears the overlay.
func (p *PresenceSet) setLocked(userID, name, color string, from, to *int) bool {
	if from == nil || to == nil {
		_, ok := p.peers[userID]
		delete(p.peers, userID)
		return ok
	}
	p.peers[userID] = Peer{UserID: userID, DisplayName: name, Color: color, From: *from, To: *to}
	return true
}

// Clear drops every overlay, as after a disconnect.
func (p *PresenceSet) Clear() {
	p.mu.Lock()
	p.peers = make(map[string]Peer)
	p.mu.Unlock()
}

// Get returns one user's overlay.
func (p *PresenceSet) Get(userID string) (Peer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peer, ok := p.peers[userID]
	return peer, ok
}

// Peers lists overlays ordered by user id.
func (p *PresenceSet) Peers() []Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		out = append(out, peer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// DefaultSelectionDebounce is the coalescing window for selection updates.
const DefaultSelectionDebounce = 100 * time.Millisecond

// SelectionDebouncer coalesces selection changes: the first change opens a
// window, and when it closes only the latest selection is sent.
type SelectionDebouncer struct {
	delay time.Duration
	send  func(protocol.Selection)

	mu     sync.Mutex
	latest protocol.Selection
	timer  *time.Timer
}

func NewSelectionDebouncer(delay time.Duration, send func(protocol.Selection)) *SelectionDebouncer {
	if delay <= 0 {
		delay = DefaultSelectionDebounce
	}
	return &SelectionDebouncer{delay: delay, send: send}
}

// Update records a selection. Nil bounds clear it.
func (d *SelectionDebouncer) Update(from, to *int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = protocol.Selection{From: from, To: to}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	}
}

func (d *SelectionDebouncer) fire() {
	d.mu.Lock()
	sel := d.latest
	d.timer = nil
	d.mu.Unlock()
	d.send(sel)
}

// Stop cancels a pending send.
func (d *SelectionDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
