package selfhosted

import (
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// ACLTarget discriminates which ACL an access request addresses, mirroring
// internal/realm's identical type (spec.md §4.4 "ACLs ... behave
// identically" to C3).
type ACLTarget int

const (
	ACLTargetAccess ACLTarget = iota
	ACLTargetAdmin
)

// ACLWrite is the payload of an access-set request.
type ACLWrite struct {
	AccessRules   []model.Rule[model.Privilege]
	AccessDefault model.Privilege
	AdminRules    []model.Rule[model.SimpleAccess]
	AdminDefault  model.SimpleAccess
}

func (c *Controller) isAdmin(p model.Principal, isSuperuser bool, now time.Time) bool {
	if isSuperuser {
		return true
	}
	return c.adminACL.Check(p, c.localServer, now) == model.SimpleAccessAllow
}

// SetACL validates caller privilege and replaces one ACL (spec.md §4.4
// "access set ... behave identically" to realm.Controller.handleAccessSet).
func (c *Controller) SetACL(caller model.Principal, isSuperuser bool, target ACLTarget, write ACLWrite, now time.Time) (ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAdmin(caller, isSuperuser, now) {
		return false, nil
	}
	switch target {
	case ACLTargetAccess:
		c.accessACL = model.AccessList[model.Privilege]{Default: write.AccessDefault, Rules: write.AccessRules}.Prune(now)
		if err := c.store.SaveAccessACL(c.ownerName, c.accessACL); err != nil {
			return false, err
		}
	case ACLTargetAdmin:
		c.adminACL = model.AccessList[model.SimpleAccess]{Default: write.AdminDefault, Rules: write.AdminRules}.Prune(now)
		if err := c.store.SaveAdminACL(c.ownerName, c.adminACL); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AddAnnouncement appends an announcement (admin-gated).
func (c *Controller) AddAnnouncement(caller model.Principal, isSuperuser bool, ann model.Announcement, now time.Time) (ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAdmin(caller, isSuperuser, now) {
		return false, nil
	}
	c.announcements = append(c.announcements, ann)
	if err := c.store.SaveAnnouncements(c.ownerName, c.announcements); err != nil {
		return false, err
	}
	return true, nil
}

// ClearAnnouncements clears the announcement list (admin-gated).
func (c *Controller) ClearAnnouncements(caller model.Principal, isSuperuser bool, now time.Time) (ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAdmin(caller, isSuperuser, now) {
		return false, nil
	}
	c.announcements = nil
	if err := c.store.SaveAnnouncements(c.ownerName, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Announcements returns the current announcement list.
func (c *Controller) Announcements() []model.Announcement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.announcements
}

// Kick evicts a guest (admin-gated).
func (c *Controller) Kick(caller model.Principal, isSuperuser bool, target model.Principal, now time.Time) (ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAdmin(caller, isSuperuser, now) {
		return false
	}
	delete(c.players, target)
	return true
}

// Rename changes the destination's display name (admin-gated).
func (c *Controller) Rename(caller model.Principal, isSuperuser bool, newName string, now time.Time) (ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isAdmin(caller, isSuperuser, now) {
		return false, nil
	}
	c.name = newName
	if err := c.store.SaveNameAndDirectory(c.ownerName, c.name, c.inDirectory); err != nil {
		return false, err
	}
	return true, nil
}

// SendMessage records a non-transient chat message (spec.md §4.4 "chat ...
// behave identically" to realm.Controller.handleSendMessage).
func (c *Controller) SendMessage(sender model.Principal, body string, transient bool, now time.Time) error {
	if transient {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SaveHostChat(c.ownerName, sender, body, now)
}

// Delete tears down the destination (admin-gated): every present guest is
// ejected and the controller marked closed (spec.md §4.4 "delete ...
// behave identically" to realm.Controller.handleDelete).
func (c *Controller) Delete(caller model.Principal, isSuperuser bool, now time.Time) (ok bool) {
	c.mu.Lock()
	if !c.isAdmin(caller, isSuperuser, now) {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	c.quit()
	return true
}
