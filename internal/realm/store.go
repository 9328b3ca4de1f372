package realm

import (
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// Store is the persistence contract a realm controller writes through to
// (spec.md §4.3 "Persistence cadence"). Implemented by internal/db; kept
// as an interface here so internal/realm never depends on a SQL driver.
type Store interface {
	LoadRealm(dbID int64) (model.Realm, error)
	InsertRealm(row model.Realm) (dbID int64, err error)
	DeleteRealm(dbID int64) error

	// SaveState writes the serialized puzzle state vector and solved flag,
	// called after every processed batch.
	SaveState(dbID int64, puzzleState []byte, solved bool) error

	SaveSettings(dbID int64, settings map[string]model.SettingValue) error
	SaveAccessACL(dbID int64, acl model.AccessList[model.Privilege]) error
	SaveAdminACL(dbID int64, acl model.AccessList[model.SimpleAccess]) error
	SaveAnnouncements(dbID int64, announcements []model.Announcement) error
	SaveNameAndDirectory(dbID int64, name string, inDirectory bool) error

	// SaveRealmChat persists one non-transient chat message (spec.md §6
	// "realmchat(realm, sender, body, created)").
	SaveRealmChat(dbID int64, sender model.Principal, body string, created time.Time) error
}
