// Package realm implements the realm controller (spec.md §4.3, component
// C3): it owns one realm's live state, wraps a puzzle.Graph and a
// navigation.Manifold, serves RealmRequest, and persists through a Store.
// Grounded on the original Rust implementation
// (_examples/original_source/server/src/realm/mod.rs, convert.rs) for the
// request/response shape and the player action-gate state machine, and on
// the teacher's per-connection write-queue style
// (internal/gameserver/client.go) for how player output is buffered and
// drained.
package realm

import (
	"time"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/navigation"
	"github.com/udisondev/la2go/internal/puzzle"
)

// ACLTarget discriminates which ACL an AccessGet/AccessSet request
// addresses (spec.md §4.3 "AccessGet/Set{target∈{Access,Admin}}").
type ACLTarget int

const (
	ACLTargetAccess ACLTarget = iota
	ACLTargetAdmin
)

// AnnouncementOp is the closed set of announcement mutations.
type AnnouncementOp int

const (
	AnnouncementAdd AnnouncementOp = iota
	AnnouncementClear
)

// RequestKind discriminates the RealmRequest union (spec.md §4.3).
type RequestKind int

const (
	RequestAccessGet RequestKind = iota
	RequestAccessSet
	RequestAnnouncementAdd
	RequestAnnouncementClear
	RequestAnnouncementList
	RequestDelete
	RequestKick
	RequestNameChange
	RequestChangeSetting
	RequestPerform
	RequestSendMessage
	RequestNoOp
)

// ChatBody is the payload of a realm chat message (spec.md §4.3 "Chat
// messages are written synchronously on send_message unless
// body.is_transient()").
type ChatBody struct {
	Text      string
	Transient bool // e.g. a typing indicator: never persisted
}

func (b ChatBody) IsTransient() bool { return b.Transient }

// RealmRequest is one request a player (or the directory, on their behalf)
// may issue to a live realm controller.
type RealmRequest struct {
	Kind RequestKind

	Caller model.Principal

	// RequestAccessGet / RequestAccessSet
	ACLTarget ACLTarget
	ACLWrite  ACLWrite // RequestAccessSet only

	// RequestAnnouncementAdd
	Announcement model.Announcement

	// RequestKick
	Target model.Principal

	// RequestNameChange
	NewName string

	// RequestChangeSetting
	SettingName  string
	SettingValue model.SettingValue

	// RequestPerform
	Actions []Action

	// RequestSendMessage
	Message ChatBody
}

// ACLWrite is the payload of an AccessSet request: one ACL's full
// replacement rule list plus default.
type ACLWrite struct {
	AccessRules []model.Rule[model.Privilege]
	AccessDefault model.Privilege
	AdminRules  []model.Rule[model.SimpleAccess]
	AdminDefault model.SimpleAccess
}

// ResponseKind discriminates the RealmResponse union.
type ResponseKind int

const (
	ResponseUpdateState ResponseKind = iota
	ResponseAccessChange
	ResponseAnnouncements
	ResponseSettingChanged
	ResponsePermissionError
	ResponseInternalError
)

// RealmResponse is what a realm controller emits back to a requesting
// player (or broadcasts to all players present).
type RealmResponse struct {
	Kind ResponseKind

	// ResponseUpdateState
	Time         time.Time
	PlayerStates map[model.Principal]PlayerStateFrame
	State        map[model.PropertyKey][]model.ConvolvedFrame

	// ResponseAccessChange
	AccessChangeOK bool

	// ResponseAnnouncements
	Announcements []model.Announcement

	// ResponseSettingChanged
	SettingName  string
	SettingValue model.SettingValue
}

// PlayerStateFrame is one player's reported position/orientation/motion as
// of a broadcast (spec.md §4.3 "PlayerStates = principal -> {final_pos,
// final_dir, effect, motion[]}").
type PlayerStateFrame struct {
	Position navigation.Point
	Facing   navigation.Direction
	Effect   string
	Motion   []Motion
}

// ActionKind is the closed set of player-submitted actions (spec.md §4.3
// "remaining_actions").
type ActionKind int

const (
	ActionEmote ActionKind = iota
	ActionMove
	ActionInteraction
	ActionRotate
)

// Action is one queued player action.
type Action struct {
	Kind ActionKind

	// ActionEmote
	Animation string
	Duration  time.Duration

	// ActionMove
	Length int

	// ActionInteraction
	InteractionTarget navigation.InteractionKey
	InteractionKind   puzzle.InteractionKind
	Payload           puzzle.Value

	// ActionRotate
	RotateDirection navigation.Direction
}

// MotionKind discriminates a Motion union entry.
type MotionKind int

const (
	MotionWalk MotionKind = iota
	MotionDirectedEmote
	MotionRotate
	MotionInteraction
)

// Motion is one committed movement/animation entry on a player's timeline,
// time-stamped so broadcasts can filter to the trailing 30-second window
// (spec.md §4.3 "motion filtered to times >= now - 30s").
type Motion struct {
	Kind      MotionKind
	Start     time.Time
	Duration  time.Duration
	Animation string
	From, To  navigation.Point
	Direction navigation.Direction
}
