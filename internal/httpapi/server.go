// Package httpapi implements every HTTP/WS endpoint spec.md §6 names: the
// client WebSocket upgrade and the server-to-server peer handshake, plus
// the small JSON/ICS/Prometheus surface around them. Generalizes the
// teacher's login.Server (internal/login/server.go: accept loop driven off
// a context, pre-built handler dispatch table) from a raw TCP listener
// speaking a packet-length-prefixed binary protocol to net/http serving
// WebSocket upgrades, since spec.md §6 names net/http's own upgrade
// handshake as the transport.
package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/auth"
	"github.com/udisondev/la2go/internal/calendar"
	"github.com/udisondev/la2go/internal/config"
	"github.com/udisondev/la2go/internal/db"
	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/directory"
	"github.com/udisondev/la2go/internal/metrics"
	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/peer"
	"github.com/udisondev/la2go/internal/selfhosted"
	"github.com/udisondev/la2go/internal/session"
	"github.com/udisondev/la2go/internal/wire"
)

// peerSubprotocol is the WebSocket subprotocol both the client and the
// server-to-server handshake negotiate (spec.md §6 "subprotocol spadina").
const peerSubprotocol = "spadina"

// Server wires every spec.md §6 endpoint to the directory/session/peer
// layers built underneath it. One Server serves one spadina process.
type Server struct {
	cfg   config.Config
	store *db.DB
	dir   *directory.Directory

	presence *Presence
	router   *FrameRouter
	dm       *peer.DMQueue
	metrics  *metrics.Metrics

	tokens   *auth.TokenIssuer
	password *auth.PasswordBackend
	keys     *auth.KeyBackend
	calIDs   *calendar.IDIssuer

	superusers map[string]bool
	peerAddrs  map[string]string // bootstrap peer name -> base address

	upgrader websocket.Upgrader
	limiter  *floodLimiter

	mux *http.ServeMux
}

// New builds a Server and its routing table. dir must already be wired to
// a directory.RealmFactory; the caller (cmd/spadina) owns that wiring
// since it depends on internal/asset/internal/realm, which internal/httpapi
// never imports directly.
func New(cfg config.Config, store *db.DB, dir *directory.Directory, presence *Presence, router *FrameRouter, dm *peer.DMQueue, mc *metrics.Metrics) *Server {
	tokenSecret := []byte(cfg.Auth.JWTSecret)
	if len(tokenSecret) == 0 {
		tokenSecret = make([]byte, 32)
		rand.Read(tokenSecret)
	}
	tokens := auth.NewTokenIssuer(tokenSecret)

	superusers := make(map[string]bool, len(cfg.Auth.Superusers))
	for _, name := range cfg.Auth.Superusers {
		superusers[strings.ToLower(name)] = true
	}
	peerAddrs := make(map[string]string, len(cfg.Peers.Bootstrap))
	for _, p := range cfg.Peers.Bootstrap {
		peerAddrs[p.Name] = p.Address
	}

	s := &Server{
		cfg:        cfg,
		store:      store,
		dir:        dir,
		presence:   presence,
		router:     router,
		dm:         dm,
		metrics:    mc,
		tokens:     tokens,
		password:   auth.NewPasswordBackend(store.Players(), cfg.Auth.AutoCreateAccounts),
		keys:       auth.NewKeyBackend(store.Players(), tokens),
		calIDs:     calendar.NewIDIssuer(tokenSecret),
		superusers: superusers,
		peerAddrs:  peerAddrs,
		upgrader:   websocket.Upgrader{Subprotocols: []string{peerSubprotocol}, ReadBufferSize: 4096, WriteBufferSize: 4096},
		limiter:    newFloodLimiter(cfg.Auth),
	}
	s.mux = s.buildMux()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /peers", s.handlePeers)
	mux.HandleFunc("GET /api/access", s.handleAccess)
	mux.HandleFunc("GET /api/auth/method", s.handleAuthMethod)
	mux.HandleFunc("POST /api/auth/password", s.handleAuthPassword)
	mux.HandleFunc("POST /api/client/nonce", s.handleClientNonce)
	mux.HandleFunc("POST /api/client/key", s.handleClientKey)
	mux.HandleFunc("GET /api/client/v1", s.handleClientUpgrade)
	mux.HandleFunc("POST /api/server/v1/start", s.handlePeerStart)
	mux.HandleFunc("GET /api/server/v1/finish", s.handlePeerFinish)
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><title>%s</title><p>%s is a spadina server.\n", s.cfg.Server.Name, s.cfg.Server.Name)
}

// handlePeers answers Prometheus HTTP service discovery (spec.md §6 "GET
// /peers -> Prometheus service-discovery JSON").
func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	names := s.dir.Peers()
	targets := make([]string, 0, len(names))
	for _, name := range names {
		addr, ok := s.peerAddrs[name]
		if !ok {
			addr = name
		}
		targets = append(targets, addr)
	}
	writeJSON(w, http.StatusOK, []map[string]any{{"targets": targets, "labels": map[string]string{"job": "spadina_peer"}}})
}

// handleAccess answers the server-wide access policy (spec.md §6 "GET
// /api/access -> JSON access policy") by returning the "server" category;
// the client WS upgrade does not consult it (spec.md §4.7/§6 banned-peers
// and server-wide ACL share the same persistence shape,
// model.AccessList[SimpleAccess]).
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	acl, err := s.store.PeerACL().ServerACL("server")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, acl)
}

func (s *Server) handleAuthMethod(w http.ResponseWriter, r *http.Request) {
	scheme := auth.SchemePassword
	if s.cfg.Auth.Backend == config.AuthBackendPublicKey {
		scheme = auth.SchemeKerberos // nearest closed-enum member; see auth.Scheme
	}
	writeJSON(w, http.StatusOK, map[string]auth.Scheme{"scheme": scheme})
}

type passwordRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleAuthPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name, err := s.password.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	token, err := s.tokens.IssueSessionToken(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type nonceRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleClientNonce(w http.ResponseWriter, r *http.Request) {
	var req nonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := model.ParsePrincipal(req.Name)
	if err != nil || !p.IsLocal() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("httpapi: nonce requires a local player name"))
		return
	}
	nonce, err := s.tokens.IssueNonce(p.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

type keyRequest struct {
	Name      string `json:"name"`
	KeyName   string `json:"key_name"`
	Nonce     string `json:"nonce"`
	Signature []byte `json:"signature"`
}

func (s *Server) handleClientKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, err := s.keys.Authenticate(req.Name, req.KeyName, req.Nonce, req.Signature)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return host
}

// --- client WebSocket upgrade (spec.md §6 "GET /api/client/v1") ---

func (s *Server) handleClientUpgrade(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)
	if !s.limiter.allow(ip) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	name, err := s.tokens.VerifySession(bearer)
	if err != nil {
		http.Error(w, "invalid or expired session token", http.StatusUnauthorized)
		return
	}
	player := model.Local(name)

	capabilities := map[string]bool{}
	if raw := r.Header.Get("X-Spadina-Capability"); raw != "" {
		for _, cap := range strings.Split(raw, ",") {
			if cap = strings.TrimSpace(cap); cap != "" {
				capabilities[cap] = true
			}
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("httpapi: client websocket upgrade failed", "player", name, "error", err)
		return
	}

	isSuperuser := s.superusers[strings.ToLower(name)]
	sess := session.New(player, isSuperuser, capabilities, nil, s.dir, s.cfg.Server.Name, s.peerDialer, s.store.Players(), s.store.DirectMessages())

	// Every local player owns exactly one self-hosted Home destination
	// (spec.md §4.4); build its controller on first connect rather than
	// waiting for a LocationChange to Home to discover it's missing, so
	// other players' guest visits can resolve it even before the owner
	// ever goes there themselves.
	s.ensureHosting(name)

	s.presence.Register(player, sess)
	s.metrics.ConnectedPlayers.Inc()

	go sess.Run()
	go s.pumpClientWrites(conn, sess)
	go func() { <-sess.Done(); conn.Close() }() // unblocks pumpClientReads if the session closes itself (kick, shutdown)
	s.pumpClientReads(conn, sess)

	sess.Close()
	s.presence.Unregister(player, sess)
	s.metrics.ConnectedPlayers.Dec()
	s.limiter.release(ip)
	conn.Close()
}

func (s *Server) pumpClientReads(conn *websocket.Conn, sess *session.Session) {
	defer close(sess.Inbound())
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wire.ClientRequest
		switch kind {
		case websocket.BinaryMessage:
			req, err = wire.DecodeClientRequest(data)
		case websocket.TextMessage:
			req, err = wire.DecodeClientRequestJSON(data)
		default:
			continue // non-text/binary frames are silently dropped (spec.md §6)
		}
		if err != nil {
			slog.Debug("httpapi: dropping malformed client frame", "error", err)
			continue
		}
		select {
		case sess.Inbound() <- req:
		default:
			slog.Warn("httpapi: client inbound queue full, dropping frame", "player", sess.Principal)
		}
	}
}

func (s *Server) pumpClientWrites(conn *websocket.Conn, sess *session.Session) {
	for {
		select {
		case resp := <-sess.Outbound():
			data, err := wire.EncodeClientResponse(resp)
			if err != nil {
				slog.Error("httpapi: encoding client response", "player", sess.Principal, "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-sess.Done():
			return
		}
	}
}

// --- peer handshake (spec.md §4.7) ---

type peerStartRequest struct {
	Server string `json:"server"`
	Token  string `json:"token"`
}

// handlePeerStart answers the inbound half of the bidirectional handshake:
// a remote server proving it can reach us. We accept immediately and, in
// the background, dial back out to its own /finish endpoint (spec.md §4.7
// "S responds 200 and within its own task issues GET .../finish back to
// self"); our own outbound dialPeer takes the mirror-image role when we
// are the one initiating.
func (s *Server) handlePeerStart(w http.ResponseWriter, r *http.Request) {
	var req peerStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	banned, err := s.store.PeerACL().BannedPeers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if banned[req.Server] {
		http.Error(w, "peer is banned", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	go s.connectPeer(req.Server, req.Token)
}

// handlePeerFinish answers the callback half: a peer we (or another
// process that trusts the same bearer token) previously sent /start to is
// now completing the WebSocket upgrade back to us.
func (s *Server) handlePeerFinish(w http.ResponseWriter, r *http.Request) {
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	peerName, err := s.tokens.VerifySession(bearer)
	if err != nil {
		http.Error(w, "invalid peer token", http.StatusUnauthorized)
		return
	}
	banned, err := s.store.PeerACL().BannedPeers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if banned[peerName] {
		http.Error(w, "peer is banned", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("httpapi: peer websocket upgrade failed", "peer", peerName, "error", err)
		return
	}
	s.adoptPeerConn(peerName, conn, parseCapabilityHeader(r.Header.Get("X-Spadina-Capability")))
}

func parseCapabilityHeader(raw string) map[string]bool {
	caps := map[string]bool{}
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps[c] = true
		}
	}
	return caps
}

// connectPeer is the outbound half of the handshake: dial the named
// peer's /api/server/v1/finish endpoint directly (spec.md §4.7 "both sides
// accept either direction; whichever completes first adopts the socket").
func (s *Server) connectPeer(name, token string) {
	addr, ok := s.peerAddrs[name]
	if !ok {
		slog.Warn("httpapi: no configured address for peer", "peer", name)
		return
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-Spadina-Capability", "")
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/server/v1/finish", header)
	if err != nil {
		slog.Warn("httpapi: dialing peer finish endpoint failed", "peer", name, "error", err)
		return
	}
	s.adoptPeerConn(name, conn, nil)
}

func (s *Server) adoptPeerConn(name string, conn *websocket.Conn, capabilities map[string]bool) {
	var pr *peer.Peer
	s.dir.Peer(name, s.connectFunc, func(pc directory.PeerConnector) {
		pr, _ = pc.(*peer.Peer)
	})
	if pr == nil {
		conn.Close()
		return
	}
	if capabilities != nil {
		pr.SetCapabilities(capabilities)
	}
	pr.Adopt(newWSPeerConn(conn))
}

// connectFunc is directory.Peer's upsert-if-absent constructor: it builds
// an Idle peer.Peer and kicks off our own outbound dial in the
// background, mirroring handlePeerStart's POST-then-dial-back flow so a
// local session that needs a peer link no peer endpoint has initiated yet
// still gets one (spec.md §4.6 "peer(name, f) ... initiates the connection
// if absent").
func (s *Server) connectFunc(name string) directory.PeerConnector {
	pr := peer.NewPeer(name, s.router)
	token, err := s.tokens.IssueSessionToken(s.cfg.Server.Name)
	if err != nil {
		slog.Error("httpapi: minting outbound peer token", "peer", name, "error", err)
		return pr
	}
	addr, ok := s.peerAddrs[name]
	if !ok {
		slog.Warn("httpapi: no configured address for peer, leaving idle", "peer", name)
		return pr
	}
	go func() {
		body, _ := json.Marshal(peerStartRequest{Server: s.cfg.Server.Name, Token: token})
		resp, err := http.Post("http://"+addr+"/api/server/v1/start", "application/json", strings.NewReader(string(body)))
		if err != nil {
			slog.Warn("httpapi: POST /api/server/v1/start failed", "peer", name, "error", err)
			return
		}
		resp.Body.Close()
		s.connectPeer(name, token)
	}()
	return pr
}

// peerDialer implements session.PeerDialer for the session layer, routing
// through the same directory upsert connectFunc uses.
func (s *Server) peerDialer(name string) directory.PeerConnector {
	var pc directory.PeerConnector
	s.dir.Peer(name, s.connectFunc, func(found directory.PeerConnector) { pc = found })
	return pc
}

// --- self-hosted destinations ---

// ensureHosting lazily builds the self-hosted controller backing a
// player's own home destination (spec.md §4.4), registering it with the
// directory the first time anyone (the owner, going Home, or a guest)
// needs it resolved. See DESIGN.md for the known limitation this carries:
// HostCommand submission (the owner responding to a guest request,
// broadcasting, dropping or moving a guest) has no wire.ClientRequest
// variant, so nothing writes to fromOwner; toOwner
// events are bridged out to the owner's live connection as an opaque
// ClientResponseBroadcast for a future client to interpret.
var hostingOnce sync.Map // owner name -> *sync.Once, serializes concurrent first-create

func (s *Server) ensureHosting(owner string) *destination.Manager {
	if mgr, ok := s.dir.Hosting(owner); ok {
		return mgr
	}
	onceVal, _ := hostingOnce.LoadOrStore(owner, &sync.Once{})
	once := onceVal.(*sync.Once)
	once.Do(func() {
		if _, ok := s.dir.Hosting(owner); ok {
			return
		}
		toOwner := make(chan selfhosted.HostEvent, 32)
		fromOwner := make(chan selfhosted.HostCommand, 8)
		ctrl := selfhosted.New(owner, s.cfg.Server.Name,
			model.AccessList[model.Privilege]{Default: model.PrivilegeAccess},
			model.AccessList[model.SimpleAccess]{Default: model.SimpleAccessAllow},
			toOwner, fromOwner, s.store.SelfHosted())
		go ctrl.Run()
		go s.bridgeHostEvents(model.Local(owner), toOwner)
		mgr := destination.New(destination.NewSelfHostedAdapter(ctrl), model.Local(owner))
		s.dir.RegisterHosting(owner, mgr)
	})
	mgr, _ := s.dir.Hosting(owner)
	return mgr
}

func (s *Server) bridgeHostEvents(owner model.Principal, toOwner <-chan selfhosted.HostEvent) {
	for ev := range toOwner {
		data, err := msgpack.Marshal(ev)
		if err != nil {
			slog.Error("httpapi: encoding host event", "owner", owner, "error", err)
			continue
		}
		s.presence.Deliver(owner, wire.ClientResponse{Kind: wire.ClientResponseBroadcast, Broadcast: data})
	}
}

// --- ICS calendar export (spec.md §6 "GET /api/calendar") ---

type calendarSource struct {
	players *db.PlayerRepository
	realms  *db.RealmRepository
}

func (c calendarSource) HomeAnnouncements(owner string) ([]model.Announcement, string, error) {
	anns, homeName, found, err := c.players.Announcements(owner)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", nil
	}
	return anns, homeName, nil
}

func (c calendarSource) RealmAnnouncements(ref calendar.RealmRef) ([]model.Announcement, string, error) {
	row, found, err := c.realms.RealmByAsset(ref.Owner, ref.Asset)
	if err != nil || !found {
		return nil, "", err
	}
	return row.Announcements, row.Name, nil
}

func (c calendarSource) InDirectoryRealms() ([]calendar.RealmRef, error) {
	rows, err := c.realms.ListInDirectory()
	if err != nil {
		return nil, err
	}
	refs := make([]calendar.RealmRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, calendar.RealmRef{Owner: row.Owner, Asset: row.Asset})
	}
	return refs, nil
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	owner, err := s.calIDs.Verify(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, "invalid calendar id", http.StatusForbidden)
		return
	}
	var refs []calendar.RealmRef
	for _, pair := range strings.Split(r.URL.Query().Get("realms"), ",") {
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "/", 2)
		if len(parts) != 2 {
			continue
		}
		refs = append(refs, calendar.RealmRef{Owner: parts[0], Asset: parts[1]})
	}
	includeDirectory, _ := strconv.ParseBool(r.URL.Query().Get("in_directory"))

	src := calendarSource{players: s.store.Players(), realms: s.store.Realms()}
	ics, err := calendar.Render(owner, refs, includeDirectory, src)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Write(ics)
}

