package destination

import (
	"fmt"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// RequestNotFoundError reports that a consent request id was already
// accepted, expired, or never existed.
type RequestNotFoundError struct{ RequestID uint64 }

func (e *RequestNotFoundError) Error() string {
	return fmt.Sprintf("destination: no pending request %d", e.RequestID)
}

// RequestFollow records a player's request to follow target around the
// destination (spec.md §4.5 "follow... expiry=5min"). The caller is
// responsible for delivering the notification itself; the manager only
// tracks consent state.
func (m *Manager) RequestFollow(source, target model.Principal, now time.Time) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[target]; !ok {
		return 0, fmt.Errorf("destination: %s is not present", target)
	}
	m.nextRequestID++
	id := m.nextRequestID
	m.followRequests[followKey{target: target, id: id}] = followRequest{source: source, expiry: now.Add(followExpiry)}
	return id, nil
}

// AcceptFollow resolves a pending follow request in the affirmative,
// returning the principal who asked to follow. Expired or unknown requests
// are rejected.
func (m *Manager) AcceptFollow(target model.Principal, requestID uint64, now time.Time) (model.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := followKey{target: target, id: requestID}
	req, ok := m.followRequests[key]
	if !ok || now.After(req.expiry) {
		delete(m.followRequests, key)
		return model.Principal{}, &RequestNotFoundError{RequestID: requestID}
	}
	delete(m.followRequests, key)
	return req.source, nil
}

// DenyFollow discards a pending follow request without accepting it.
func (m *Manager) DenyFollow(target model.Principal, requestID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.followRequests, followKey{target: target, id: requestID})
}

// RequestConsensualEmote records a player's request to perform a
// two-party emote with target, pending target's consent (spec.md §4.5
// "consensual emote... expiry=5min").
func (m *Manager) RequestConsensualEmote(source, target model.Principal, emote string, now time.Time) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.players[target]; !ok {
		return 0, fmt.Errorf("destination: %s is not present", target)
	}
	m.nextRequestID++
	id := m.nextRequestID
	m.consensualEmoteRequests[followKey{target: target, id: id}] = emoteRequest{source: source, emote: emote, expiry: now.Add(followExpiry)}
	return id, nil
}

// AcceptConsensualEmote resolves a pending consensual-emote request,
// returning the requesting principal and the emote name.
func (m *Manager) AcceptConsensualEmote(target model.Principal, requestID uint64, now time.Time) (model.Principal, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := followKey{target: target, id: requestID}
	req, ok := m.consensualEmoteRequests[key]
	if !ok || now.After(req.expiry) {
		delete(m.consensualEmoteRequests, key)
		return model.Principal{}, "", &RequestNotFoundError{RequestID: requestID}
	}
	delete(m.consensualEmoteRequests, key)
	return req.source, req.emote, nil
}

// DenyConsensualEmote discards a pending consensual-emote request without
// accepting it.
func (m *Manager) DenyConsensualEmote(target model.Principal, requestID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consensualEmoteRequests, followKey{target: target, id: requestID})
}

// Tick runs activity-triggered garbage collection of expired consent
// requests at most once per activityGCInterval (spec.md §4.5 "garbage
// collected each activity tick (15 min default)").
func (m *Manager) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastActivityGC.IsZero() && now.Sub(m.lastActivityGC) < activityGCInterval {
		return
	}
	m.lastActivityGC = now

	for key, req := range m.followRequests {
		if now.After(req.expiry) {
			delete(m.followRequests, key)
		}
	}
	for key, req := range m.consensualEmoteRequests {
		if now.After(req.expiry) {
			delete(m.consensualEmoteRequests, key)
		}
	}
}
