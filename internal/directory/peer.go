package directory

// PeerConnector is the minimal contract the directory needs from a live
// peer connection (spec.md §4.6 "Peer access"). internal/peer's Peer type
// satisfies this; kept narrow here so internal/directory never imports
// internal/peer (the dependency runs the other way: the peer layer asks
// the directory to resolve local launch targets for visitors).
type PeerConnector interface {
	Name() string
	Close()
	// Dead reports whether the connection's task has already exited, so a
	// stale entry can be swept without an explicit Close.
	Dead() bool
}

// Peer upserts a peer entry, initiating the connection via connect if
// absent, then invokes f with the live connector (spec.md §4.6 "peer(name,
// f) upserts a Peer entry (initiates the connection if absent) and invokes
// f(&peer)").
func (d *Directory) Peer(name string, connect func(name string) PeerConnector, f func(PeerConnector)) {
	d.mu.Lock()
	p, ok := d.peers[name]
	if !ok || p.Dead() {
		p = connect(name)
		d.peers[name] = p
	}
	d.mu.Unlock()
	f(p)
}

// ApplyPeerBans closes and removes every peer whose name appears in bans
// (spec.md §4.6 "apply_peer_bans(bans) closes and removes any matching
// peers").
func (d *Directory) ApplyPeerBans(bans map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, p := range d.peers {
		if bans[name] {
			p.Close()
			delete(d.peers, name)
		}
	}
}

// CleanPeer removes a peer entry whose connection task has already exited
// (spec.md §4.6 "clean_peer(name) removes a peer whose connection task has
// exited").
func (d *Directory) CleanPeer(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.peers[name]; ok && p.Dead() {
		delete(d.peers, name)
	}
}

// Lookup returns a currently-known peer entry without initiating a
// connection, used by inbound frame handling where the link must already
// exist (the frame arrived on it).
func (d *Directory) Lookup(name string) (PeerConnector, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[name]
	return p, ok
}

// Peers returns a snapshot of currently-known peer names.
func (d *Directory) Peers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.peers))
	for name := range d.peers {
		names = append(names, name)
	}
	return names
}
