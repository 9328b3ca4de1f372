package destination

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/realm"
	"github.com/udisondev/la2go/internal/selfhosted"
)

// RealmAdapter satisfies Destination by wrapping a realm.Controller (C3)
// with the capability set its converted asset declared at resolution time
// (spec.md §4.5, "parameterized by a controller (Destination) trait").
// Realm request/response traffic is request-response (Handle), not pushed
// down out; the adapter fans each update-state response back out to every
// other present player via the owning Manager, mirroring how runBatch
// broadcasts to the whole realm rather than just the requester.
type RealmAdapter struct {
	Controller   *realm.Controller
	capabilities map[string]bool
	manager      *Manager
}

// NewRealmAdapter wraps a live realm controller for use by a Manager.
func NewRealmAdapter(c *realm.Controller, capabilities map[string]bool) *RealmAdapter {
	return &RealmAdapter{Controller: c, capabilities: capabilities}
}

// NewRealmManager builds a Manager around a fresh RealmAdapter and wires
// the back-reference Handle needs to broadcast to other present players.
func NewRealmManager(c *realm.Controller, capabilities map[string]bool, owner model.Principal) (*Manager, *RealmAdapter) {
	adapter := NewRealmAdapter(c, capabilities)
	mgr := New(adapter, owner)
	adapter.AttachManager(mgr)
	return mgr, adapter
}

// AttachManager records the Manager this adapter is wrapped by, so Handle
// can broadcast updates to every other present player. Called once, right
// after the Manager is constructed around this adapter.
func (a *RealmAdapter) AttachManager(m *Manager) { a.manager = m }

func (a *RealmAdapter) TryAdd(p model.Principal, isSuperuser bool, out chan<- ControlOutput, now time.Time) error {
	return a.Controller.TryAdd(p, isSuperuser, now)
}
func (a *RealmAdapter) RemovePlayer(p model.Principal) { a.Controller.RemovePlayer(p) }
func (a *RealmAdapter) Capabilities() map[string]bool  { return a.capabilities }

// Handle forwards one realm request to the live controller and, when it
// produces an updated broadcast state, fans it out to every other present
// player (spec.md §4.3 "runBatch" broadcasts the new PlayerStates/State to
// the whole realm, not just whoever triggered the batch).
func (a *RealmAdapter) Handle(req realm.RealmRequest, isSuperuser bool, now time.Time) (realm.RealmResponse, error) {
	resp, err := a.Controller.Handle(req, isSuperuser, now)
	if err != nil {
		return resp, err
	}
	if resp.Kind == realm.ResponseUpdateState && a.manager != nil {
		data, encErr := msgpack.Marshal(resp)
		if encErr != nil {
			return resp, fmt.Errorf("destination: encoding realm broadcast: %w", encErr)
		}
		var targets []model.Principal
		for _, p := range a.manager.Players() {
			if !p.Equal(req.Caller) {
				targets = append(targets, p)
			}
		}
		if len(targets) > 0 {
			a.manager.Dispatch(ControlOutput{Kind: ControlBroadcast, Targets: targets, Payload: data})
		}
	}
	return resp, nil
}

// Delete implements directory.AdminDeleter: it re-checks admin ACL through
// the live controller rather than trusting the caller (spec.md §4.6
// "Delete routes to the manager if live, which re-checks admin ACL").
func (a *RealmAdapter) Delete(requester model.Principal, isSuperuser bool, now time.Time) (bool, error) {
	resp, err := a.Handle(realm.RealmRequest{Kind: realm.RequestDelete, Caller: requester}, isSuperuser, now)
	if err != nil {
		return false, err
	}
	if resp.Kind == realm.ResponsePermissionError {
		return false, nil
	}
	return resp.AccessChangeOK, nil
}

// SelfHostedAdapter satisfies Destination by wrapping a
// selfhosted.Controller (C4); self-hosted destinations declare no
// capability requirements beyond what the owning player's own client
// implements, so Capabilities is always empty.
type SelfHostedAdapter struct {
	Controller *selfhosted.Controller
}

// NewSelfHostedAdapter wraps a live self-hosted controller for use by a
// Manager.
func NewSelfHostedAdapter(c *selfhosted.Controller) *SelfHostedAdapter {
	return &SelfHostedAdapter{Controller: c}
}

// TryAdd bridges the selfhosted controller's own HostCommandDelivery
// channel into the Manager's generic ControlOutput channel: a player
// admitted to a self-hosted destination still receives Broadcast/Move/Drop
// the same way a realm guest does, translated from the owner-client
// protocol (spec.md §4.4, §4.5).
func (a *SelfHostedAdapter) TryAdd(p model.Principal, isSuperuser bool, out chan<- ControlOutput, now time.Time) error {
	bridge := make(chan selfhosted.HostCommandDelivery, 32)
	if err := a.Controller.TryAdd(p, isSuperuser, nil, bridge, now); err != nil {
		return err
	}
	go forwardDeliveries(bridge, out)
	return nil
}

func (a *SelfHostedAdapter) RemovePlayer(p model.Principal) { a.Controller.RemovePlayer(p) }
func (a *SelfHostedAdapter) Capabilities() map[string]bool  { return map[string]bool{} }

func forwardDeliveries(bridge <-chan selfhosted.HostCommandDelivery, out chan<- ControlOutput) {
	for delivery := range bridge {
		translated := ControlOutput{Payload: delivery.Payload, Move: delivery.Move, RequestID: delivery.RequestID, Response: delivery.Response}
		switch delivery.Kind {
		case selfhosted.HostCommandBroadcast:
			translated.Kind = ControlBroadcast
		case selfhosted.HostCommandDrop:
			translated.Kind = ControlQuit
		case selfhosted.HostCommandMove:
			translated.Kind = ControlMove
		case selfhosted.HostCommandResponse, selfhosted.HostCommandRequestError:
			translated.Kind = ControlResponse
		}
		select {
		case out <- translated:
		default:
		}
	}
}
