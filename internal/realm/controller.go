package realm

import (
	"fmt"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
)

// Controller owns one realm's live state: the puzzle graph, the navigation
// manifold, present players, and write-through persistence (spec.md §4.3,
// component C3). A Controller is driven by a Destination Manager (C5)
// calling TryAdd/Handle/RemovePlayer/Tick from whatever goroutine serves
// that player's request; internal state is protected by mu rather than
// confined to a single actor goroutine, since Go gives no equivalent of the
// original's single-threaded async executor per realm.
type Controller struct {
	mu sync.Mutex

	row      model.Realm
	graph    *puzzle.Graph
	manifold *navigation.Manifold
	effects  map[model.Principal]string
	store    Store

	players map[model.Principal]*PlayerSession

	localServer string
	closed      bool
}

// SetLocalServer configures the server name used to resolve
// SubjectLocalServer/SubjectServer ACL rules against local principals.
func (c *Controller) SetLocalServer(name string) { c.localServer = name }

// Row returns a snapshot of the persisted realm row backing this
// controller (owner, asset, DB id), for a directory.RealmFactory to learn
// what New actually resolved a launch target to (spec.md §4.6 "the
// resolver cache... the concrete (owner, asset) a LaunchTarget resolved
// to").
func (c *Controller) Row() model.Realm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.row
}

// Controller has no Capabilities method (spec.md §4.5
// "controller.capabilities()"): New checks the asset's capability tags once
// against the resolver's supported set and does not keep them.

// TryAdd admits a player into the realm, checking the access ACL (spec.md
// §4.5 step 3 "controller.try_add(key, principal, is_superuser)").
// Superusers bypass the access ACL entirely.
func (c *Controller) TryAdd(p model.Principal, isSuperuser bool, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("realm: controller is shutting down")
	}
	if !isSuperuser {
		verdict := c.row.AccessACL.Check(p, c.localServer, now)
		if verdict == model.PrivilegeDeny {
			return fmt.Errorf("realm: access denied for %s", p)
		}
	}
	spawn, _ := c.manifold.Warp(nil)
	c.players[p] = &PlayerSession{
		Principal: p,
		Position:  spawn,
		Gate:      ActionGate{Kind: GateStop},
		cursor:    now,
	}
	return nil
}

// RemovePlayer evicts a player from the controller's live state (spec.md
// §4.5 "the controller is told via remove_player").
func (c *Controller) RemovePlayer(p model.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.players, p)
}

// isAdmin reports whether p carries admin privilege, either via the
// per-realm admin ACL or by being a superuser.
func (c *Controller) isAdmin(p model.Principal, isSuperuser bool, now time.Time) bool {
	if isSuperuser {
		return true
	}
	return c.row.AdminACL.Check(p, c.localServer, now) == model.SimpleAccessAllow
}

// Handle dispatches one RealmRequest, mutating controller state and
// persisting through as needed (spec.md §4.3 "Request handling").
func (c *Controller) Handle(req RealmRequest, isSuperuser bool, now time.Time) (RealmResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch req.Kind {
	case RequestAccessGet:
		return c.handleAccessGet(req), nil
	case RequestAccessSet:
		return c.handleAccessSet(req, isSuperuser, now)
	case RequestAnnouncementAdd:
		return c.handleAnnouncementAdd(req, isSuperuser, now)
	case RequestAnnouncementClear:
		return c.handleAnnouncementClear(req, isSuperuser, now)
	case RequestAnnouncementList:
		return RealmResponse{Kind: ResponseAnnouncements, Announcements: c.row.Announcements}, nil
	case RequestDelete:
		return c.handleDelete(req, isSuperuser, now)
	case RequestKick:
		return c.handleKick(req, isSuperuser, now)
	case RequestNameChange:
		return c.handleNameChange(req, isSuperuser, now)
	case RequestChangeSetting:
		return c.handleChangeSetting(req, now)
	case RequestPerform:
		return c.handlePerform(req, now)
	case RequestSendMessage:
		return c.handleSendMessage(req, now)
	case RequestNoOp:
		return RealmResponse{}, nil
	default:
		return RealmResponse{Kind: ResponseInternalError}, fmt.Errorf("realm: unknown request kind %d", req.Kind)
	}
}

func (c *Controller) handleAccessGet(req RealmRequest) RealmResponse {
	switch req.ACLTarget {
	case ACLTargetAdmin:
		return RealmResponse{Kind: ResponseAccessChange, AccessChangeOK: true}
	default:
		return RealmResponse{Kind: ResponseAccessChange, AccessChangeOK: true}
	}
}

func (c *Controller) handleAccessSet(req RealmRequest, isSuperuser bool, now time.Time) (RealmResponse, error) {
	if !c.isAdmin(req.Caller, isSuperuser, now) {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	switch req.ACLTarget {
	case ACLTargetAccess:
		c.row.AccessACL = model.AccessList[model.Privilege]{
			Default: req.ACLWrite.AccessDefault,
			Rules:   req.ACLWrite.AccessRules,
		}.Prune(now)
		if err := c.store.SaveAccessACL(c.row.DBID, c.row.AccessACL); err != nil {
			return RealmResponse{Kind: ResponseInternalError}, err
		}
	case ACLTargetAdmin:
		c.row.AdminACL = model.AccessList[model.SimpleAccess]{
			Default: req.ACLWrite.AdminDefault,
			Rules:   req.ACLWrite.AdminRules,
		}.Prune(now)
		if err := c.store.SaveAdminACL(c.row.DBID, c.row.AdminACL); err != nil {
			return RealmResponse{Kind: ResponseInternalError}, err
		}
	}
	return RealmResponse{Kind: ResponseAccessChange, AccessChangeOK: true}, nil
}

func (c *Controller) handleAnnouncementAdd(req RealmRequest, isSuperuser bool, now time.Time) (RealmResponse, error) {
	if !c.isAdmin(req.Caller, isSuperuser, now) {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	c.row.Announcements = append(c.row.Announcements, req.Announcement)
	if err := c.store.SaveAnnouncements(c.row.DBID, c.row.Announcements); err != nil {
		return RealmResponse{Kind: ResponseInternalError}, err
	}
	return RealmResponse{Kind: ResponseAnnouncements, Announcements: c.row.Announcements}, nil
}

func (c *Controller) handleAnnouncementClear(req RealmRequest, isSuperuser bool, now time.Time) (RealmResponse, error) {
	if !c.isAdmin(req.Caller, isSuperuser, now) {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	c.row.Announcements = nil
	if err := c.store.SaveAnnouncements(c.row.DBID, nil); err != nil {
		return RealmResponse{Kind: ResponseInternalError}, err
	}
	return RealmResponse{Kind: ResponseAnnouncements}, nil
}

// handleDelete deletes the realm row and marks the controller for
// shutdown; callers are responsible for ejecting every present player with
// LocationNoWhere once Handle returns (spec.md §4.3 "Delete").
func (c *Controller) handleDelete(req RealmRequest, isSuperuser bool, now time.Time) (RealmResponse, error) {
	if !c.isAdmin(req.Caller, isSuperuser, now) {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	if err := c.store.DeleteRealm(c.row.DBID); err != nil {
		return RealmResponse{Kind: ResponseInternalError}, err
	}
	c.closed = true
	return RealmResponse{Kind: ResponseAccessChange, AccessChangeOK: true}, nil
}

// Closed reports whether this controller has processed a Delete and should
// be torn down by its owning Destination Manager.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) handleKick(req RealmRequest, isSuperuser bool, now time.Time) (RealmResponse, error) {
	if !c.isAdmin(req.Caller, isSuperuser, now) {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	delete(c.players, req.Target)
	return RealmResponse{Kind: ResponseAccessChange, AccessChangeOK: true}, nil
}

func (c *Controller) handleNameChange(req RealmRequest, isSuperuser bool, now time.Time) (RealmResponse, error) {
	if !c.isAdmin(req.Caller, isSuperuser, now) {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	c.row.Name = req.NewName
	if err := c.store.SaveNameAndDirectory(c.row.DBID, c.row.Name, c.row.InDirectory); err != nil {
		return RealmResponse{Kind: ResponseInternalError}, err
	}
	return RealmResponse{Kind: ResponseAccessChange, AccessChangeOK: true}, nil
}

// handleChangeSetting validates and applies a setting change (spec.md §4.3
// "ChangeSetting"); cleaning (URL parse, bounds checks) is the
// responsibility of the asset-declared setting schema, not modeled further
// here since it is asset-type-specific.
func (c *Controller) handleChangeSetting(req RealmRequest, now time.Time) (RealmResponse, error) {
	caller := req.Caller
	if c.row.AccessACL.Check(caller, c.localServer, now) == model.PrivilegeDeny {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	existing, ok := c.row.Settings[req.SettingName]
	if !ok || existing.Kind != req.SettingValue.Kind {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	if c.row.Settings == nil {
		c.row.Settings = map[string]model.SettingValue{}
	}
	c.row.Settings[req.SettingName] = req.SettingValue
	if err := c.store.SaveSettings(c.row.DBID, c.row.Settings); err != nil {
		return RealmResponse{Kind: ResponseInternalError}, err
	}
	return RealmResponse{
		Kind:         ResponseSettingChanged,
		SettingName:  req.SettingName,
		SettingValue: req.SettingValue,
	}, nil
}

func (c *Controller) handleSendMessage(req RealmRequest, now time.Time) (RealmResponse, error) {
	if !req.Message.IsTransient() {
		if err := c.store.SaveRealmChat(c.row.DBID, req.Caller, req.Message.Text, now); err != nil {
			return RealmResponse{Kind: ResponseInternalError}, err
		}
	}
	return RealmResponse{}, nil
}

// handlePerform replaces the caller's remaining_actions queue and drives
// the player state machine to a standstill, then runs a broadcast batch
// (spec.md §4.3 "Perform(actions)... Then drives the player state
// machine").
func (c *Controller) handlePerform(req RealmRequest, now time.Time) (RealmResponse, error) {
	session, ok := c.players[req.Caller]
	if !ok {
		return RealmResponse{Kind: ResponsePermissionError}, nil
	}
	session.RemainingActions = req.Actions
	session.Gate = ActionGate{Kind: GateStop}
	return c.runBatch(now)
}
