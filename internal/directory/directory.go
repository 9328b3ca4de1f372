// Package directory implements the process-wide directory (spec.md §4.6,
// component C6): the index of live self-hosted and realm destinations, the
// realm resolver cache, and the launch-request handler that serializes
// realm lookup/creation to prevent a split-brain two-live-controllers
// situation for one DB row. Grounded on the original Rust implementation
// (_examples/original_source/server/src/database.rs) for the launch
// protocol, and on the teacher's single process-wide World singleton
// (internal/world) for the shape of a process-wide index guarded by one
// mutex.
package directory

import (
	"fmt"
	"sync"
	"time"

	"github.com/udisondev/la2go/internal/destination"
	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
)

// LaunchTargetKind discriminates how a launch target addresses a realm
// (spec.md §4.6 "ByAsset{owner,asset} / ByTrain{owner,train}").
type LaunchTargetKind int

const (
	LaunchByAsset LaunchTargetKind = iota
	LaunchByTrain
)

// LaunchTarget is what a player's Move request names: either a specific
// asset owned by a player, or a position in that player's train.
type LaunchTarget struct {
	Kind  LaunchTargetKind
	Owner string
	Asset string // LaunchByAsset
	Train int32  // LaunchByTrain
}

// realmKey is the resolver cache's value: the concrete (owner,asset) a
// LaunchTarget resolved to, used to address the live realms map.
type realmKey struct {
	owner string
	asset string
}

// AdmissionRequest carries everything a destination.Manager.Add call needs
// for one player (spec.md §4.5 admission protocol, invoked here on the
// player's behalf once the directory has resolved a destination).
type AdmissionRequest struct {
	Player       model.Principal
	Capabilities map[string]bool
	Avatar       []byte
	Out          chan<- destination.ControlOutput
}

// RealmFactory builds a live destination.Manager for a resolved realm
// launch, wiring in whatever asset resolver/converter/store the caller
// configured; kept as an injected function so internal/directory never
// depends on internal/asset or internal/db directly.
type RealmFactory func(launch realm.Launch, now time.Time) (mgr *destination.Manager, row model.Realm, err error)

// Store is the persistence contract the launch-request handler reads
// through to when the resolver cache misses (spec.md §4.6 "query
// storage").
type Store interface {
	RealmByAsset(owner, asset string) (model.Realm, bool, error)
	RealmByTrain(owner string, train int32) (model.Realm, bool, error)
	PickUnusedTrain(owner string) (train int32, ok bool, err error)
	RealmACLForDelete(owner, asset string) (dbID int64, acl model.AccessList[model.SimpleAccess], found bool, err error)
	DeleteRealmDirect(dbID int64) error
}

// AdminDeleter is implemented by destination.Destination wrappers that
// support an admin-gated delete, routed to the live controller when
// present (spec.md §4.6 "Delete{realm,requester} routes to the manager if
// live (which re-checks admin ACL)").
type AdminDeleter interface {
	Delete(requester model.Principal, isSuperuser bool, now time.Time) (bool, error)
}

// WaitingForTrainError reports that no unused train asset exists yet; the
// caller is expected to retry once an admin adds one (spec.md §4.6 "mark
// the player waiting for train").
type WaitingForTrainError struct{ Owner string }

func (e *WaitingForTrainError) Error() string {
	return fmt.Sprintf("directory: %s has no unused train asset", e.Owner)
}

// ResolutionFailedError reports that a launch target could not be resolved
// to a live destination.
type ResolutionFailedError struct{ Cause error }

func (e *ResolutionFailedError) Error() string {
	return fmt.Sprintf("directory: resolution failed: %v", e.Cause)
}
func (e *ResolutionFailedError) Unwrap() error { return e.Cause }

// Directory is the process-wide index of live destinations (spec.md §4.6
// "State"). One instance per process.
type Directory struct {
	mu sync.Mutex

	hosting map[string]*destination.Manager // self-hosted destinations, keyed by owner player name
	realms  map[realmKey]*destination.Manager

	resolver map[LaunchTarget]realmKey

	peers map[string]PeerConnector

	store       Store
	newRealm    RealmFactory
	localServer string
}

// New creates an empty directory.
func New(store Store, newRealm RealmFactory, localServer string) *Directory {
	return &Directory{
		hosting:     map[string]*destination.Manager{},
		realms:      map[realmKey]*destination.Manager{},
		resolver:    map[LaunchTarget]realmKey{},
		peers:       map[string]PeerConnector{},
		store:       store,
		newRealm:    newRealm,
		localServer: localServer,
	}
}

// RegisterHosting adds (or replaces) a self-hosted destination under its
// owner's player name (spec.md §4.6 "hosting: map<player_name,
// DestinationManager<SelfHosted>>").
func (d *Directory) RegisterHosting(owner string, mgr *destination.Manager) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hosting[owner] = mgr
}

// UnregisterHosting removes a self-hosted destination, e.g. once its
// controller reports Closed.
func (d *Directory) UnregisterHosting(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.hosting, owner)
}

// Hosting looks up a live self-hosted destination by owner player name.
func (d *Directory) Hosting(owner string) (*destination.Manager, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mgr, ok := d.hosting[owner]
	return mgr, ok
}

// Realm looks up a live realm destination by its resolved (owner, asset)
// key, letting a session hold onto the manager it was just admitted to
// (spec.md §4.8 "the session records which destination it is attached
// to").
func (d *Directory) Realm(owner, asset string) (*destination.Manager, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mgr, ok := d.realms[realmKey{owner: owner, asset: asset}]
	return mgr, ok
}

// ResolvedKey reports the (owner, asset) a launch target last resolved to,
// letting a caller that just completed a Move look up the live manager via
// Realm without re-deriving train resolution itself.
func (d *Directory) ResolvedKey(target LaunchTarget) (owner, asset string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key, ok := d.resolver[target]
	return key.owner, key.asset, ok
}

// Move runs the launch-request handler for one player against one target
// (spec.md §4.6 "Launch request handler... On Move(handle, target)"),
// resolving (from cache or storage, spawning if needed) then delegating
// admission to the live manager.
func (d *Directory) Move(req AdmissionRequest, target LaunchTarget, now time.Time) error {
	mgr, _, err := d.resolve(target, now)
	if err != nil {
		return err
	}

	if err := mgr.Add(req.Player, req.Capabilities, req.Avatar, req.Out, now); err != nil {
		// leave the manager itself live for any players already present;
		// only the stale resolver entry is invalidated so the next Move
		// re-resolves (spec.md §4.6 "on failure evict cache entry so the
		// next attempt reinitializes").
		d.mu.Lock()
		delete(d.resolver, target)
		d.mu.Unlock()
		return err
	}
	return nil
}

// resolve returns the live manager for target, using the resolver cache
// when valid and otherwise querying storage and spawning as needed.
func (d *Directory) resolve(target LaunchTarget, now time.Time) (*destination.Manager, realmKey, error) {
	d.mu.Lock()
	if key, ok := d.resolver[target]; ok {
		if mgr, ok := d.realms[key]; ok {
			d.mu.Unlock()
			return mgr, key, nil
		}
		delete(d.resolver, target)
	}
	d.mu.Unlock()

	key, mgr, err := d.resolveAndSpawn(target, now)
	if err != nil {
		return nil, realmKey{}, err
	}

	d.mu.Lock()
	d.resolver[target] = key
	d.mu.Unlock()
	return mgr, key, nil
}

func (d *Directory) resolveAndSpawn(target LaunchTarget, now time.Time) (realmKey, *destination.Manager, error) {
	switch target.Kind {
	case LaunchByAsset:
		key := realmKey{owner: target.Owner, asset: target.Asset}
		d.mu.Lock()
		if mgr, ok := d.realms[key]; ok {
			d.mu.Unlock()
			return key, mgr, nil
		}
		d.mu.Unlock()

		row, found, err := d.store.RealmByAsset(target.Owner, target.Asset)
		if err != nil {
			return realmKey{}, nil, &ResolutionFailedError{Cause: err}
		}
		var launch realm.Launch
		if found {
			launch = realm.Launch{Kind: realm.LaunchExisting, DBID: row.DBID}
		} else {
			launch = realm.Launch{Kind: realm.LaunchNew, Owner: target.Owner, Asset: target.Asset}
		}
		return d.spawn(key, launch, now)

	case LaunchByTrain:
		row, found, err := d.store.RealmByTrain(target.Owner, target.Train)
		if err != nil {
			return realmKey{}, nil, &ResolutionFailedError{Cause: err}
		}
		if !found {
			trainIdx, ok, err := d.store.PickUnusedTrain(target.Owner)
			if err != nil {
				return realmKey{}, nil, &ResolutionFailedError{Cause: err}
			}
			if !ok {
				return realmKey{}, nil, &WaitingForTrainError{Owner: target.Owner}
			}
			row, found, err = d.store.RealmByTrain(target.Owner, trainIdx)
			if err != nil {
				return realmKey{}, nil, &ResolutionFailedError{Cause: err}
			}
			if !found {
				return realmKey{}, nil, &WaitingForTrainError{Owner: target.Owner}
			}
		}

		key := realmKey{owner: row.Owner, asset: row.Asset}
		d.mu.Lock()
		if mgr, ok := d.realms[key]; ok {
			d.mu.Unlock()
			return key, mgr, nil
		}
		d.mu.Unlock()
		return d.spawn(key, realm.Launch{Kind: realm.LaunchExisting, DBID: row.DBID}, now)

	default:
		return realmKey{}, nil, fmt.Errorf("directory: unknown launch target kind %d", target.Kind)
	}
}

func (d *Directory) spawn(key realmKey, launch realm.Launch, now time.Time) (realmKey, *destination.Manager, error) {
	mgr, row, err := d.newRealm(launch, now)
	if err != nil {
		return realmKey{}, nil, &ResolutionFailedError{Cause: err}
	}
	actual := realmKey{owner: row.Owner, asset: row.Asset}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.realms[actual]; ok {
		// another caller won the race; keep the one already registered.
		return actual, existing, nil
	}
	d.realms[actual] = mgr
	return actual, mgr, nil
}

// CheckActivity returns a coarse activity estimate (current player count)
// for a live realm destination (spec.md §4.6 "CheckActivity{realm} returns
// a coarse activity estimate from the manager").
func (d *Directory) CheckActivity(owner, asset string) (int, bool) {
	d.mu.Lock()
	mgr, ok := d.realms[realmKey{owner: owner, asset: asset}]
	d.mu.Unlock()
	if !ok {
		return 0, false
	}
	return len(mgr.Players()), true
}

// ClearCache drops every resolver entry, forcing the next Move to consult
// storage again (spec.md §4.6 "ClearCache drops the resolver").
func (d *Directory) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolver = map[LaunchTarget]realmKey{}
}

// DeleteRealm routes a delete request to the live controller if present
// (which re-checks the admin ACL itself), or deletes directly from storage
// after an ACL check here (spec.md §4.6 "Delete{realm, requester}").
func (d *Directory) DeleteRealm(owner, asset string, requester model.Principal, isSuperuser bool, now time.Time) (bool, error) {
	key := realmKey{owner: owner, asset: asset}
	d.mu.Lock()
	mgr, live := d.realms[key]
	d.mu.Unlock()

	if live {
		deleter, ok := mgr.Destination().(AdminDeleter)
		if !ok {
			return false, fmt.Errorf("directory: live destination does not support delete")
		}
		ok2, err := deleter.Delete(requester, isSuperuser, now)
		if err != nil {
			return false, err
		}
		if ok2 {
			d.mu.Lock()
			delete(d.realms, key)
			d.mu.Unlock()
		}
		return ok2, nil
	}

	dbID, acl, found, err := d.store.RealmACLForDelete(owner, asset)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	verdict := acl.Check(requester, d.localServer, now)
	if !isSuperuser && verdict != model.SimpleAccessAllow {
		return false, nil
	}
	if err := d.store.DeleteRealmDirect(dbID); err != nil {
		return false, err
	}
	return true, nil
}
