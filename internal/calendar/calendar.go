// Package calendar renders GET /api/calendar (spec.md §6): an ICS export of
// announcements, global and per-realm. No ICS-writing library is attested
// anywhere in the pack (SPEC_FULL.md §11.7), so the VCALENDAR/VEVENT text
// format is written directly with text/template, matching the teacher's own
// habit of hand-writing small wire/text formats (internal/html.Cache,
// internal/protocol) rather than reaching for a dependency the corpus
// doesn't carry.
package calendar

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/udisondev/la2go/internal/model"
)

// Event is one ICS VEVENT derived from an Announcement (spec.md §6
// "announcement(contents, expires, event, realm)").
type Event struct {
	UID        string
	Summary    string
	RealmName  string // empty for a global announcement
	Start      time.Time
	End        time.Time // Start+1h when the announcement names no explicit duration
	LastModify time.Time
}

// RealmRef addresses one realm the `realms=` query parameter names, the
// same (owner, asset) key every other realm lookup in this codebase uses
// (spec.md §4.6 "ByAsset{owner,asset}").
type RealmRef struct {
	Owner string
	Asset string
}

// Source is the persistence contract the calendar handler reads through;
// db.RealmRepository/db.PlayerRepository each contribute announcements for
// the realms/home destination the calendar id's owner can see.
type Source interface {
	// HomeAnnouncements returns the calendar owner's own home-destination
	// announcements, standing in for a player's "global" section since this
	// schema has no realm-independent announcement table.
	HomeAnnouncements(owner string) ([]model.Announcement, string, error)
	// RealmAnnouncements returns one realm's announcements and display name.
	RealmAnnouncements(ref RealmRef) ([]model.Announcement, string, error)
	// InDirectoryRealms lists every realm currently listed in the public directory.
	InDirectoryRealms() ([]RealmRef, error)
}

var icsTemplate = template.Must(template.New("ics").Parse(
	`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//spadina//calendar//EN
CALSCALE:GREGORIAN
{{range .Events}}BEGIN:VEVENT
UID:{{.UID}}
DTSTAMP:{{.LastModify.UTC.Format "20060102T150405Z"}}
DTSTART:{{.Start.UTC.Format "20060102T150405Z"}}
DTEND:{{.End.UTC.Format "20060102T150405Z"}}
SUMMARY:{{.Summary}}
END:VEVENT
{{end}}END:VCALENDAR
`))

// escapeText applies the RFC 5545 §3.3.11 TEXT escaping rules this template
// doesn't apply itself (backslash, comma, semicolon, newline).
func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`,`, `\,`,
		`;`, `\;`,
		"\n", `\n`,
	)
	return r.Replace(s)
}

// Render builds one calendar owner's visible announcements into events and
// writes the ICS document: their own home announcements, plus every realm
// named in refs, plus (if includeDirectory) every publicly directory-listed
// realm.
func Render(owner string, refs []RealmRef, includeDirectory bool, src Source) ([]byte, error) {
	var events []Event

	home, homeName, err := src.HomeAnnouncements(owner)
	if err != nil {
		return nil, fmt.Errorf("calendar: loading home announcements for %q: %w", owner, err)
	}
	events = append(events, toEvents(homeName, home)...)

	all := refs
	if includeDirectory {
		listed, err := src.InDirectoryRealms()
		if err != nil {
			return nil, fmt.Errorf("calendar: loading directory realms: %w", err)
		}
		all = append(append([]RealmRef{}, refs...), listed...)
	}
	seen := make(map[RealmRef]bool, len(all))
	for _, ref := range all {
		if ref.Asset == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		anns, realmName, err := src.RealmAnnouncements(ref)
		if err != nil {
			return nil, fmt.Errorf("calendar: loading announcements for realm %s/%s: %w", ref.Owner, ref.Asset, err)
		}
		events = append(events, toEvents(realmName, anns)...)
	}

	var buf bytes.Buffer
	if err := icsTemplate.Execute(&buf, struct{ Events []Event }{Events: events}); err != nil {
		return nil, fmt.Errorf("calendar: rendering ICS: %w", err)
	}
	return buf.Bytes(), nil
}

func toEvents(realmName string, anns []model.Announcement) []Event {
	out := make([]Event, 0, len(anns))
	for i, a := range anns {
		if a.Event == nil {
			continue // no calendar-relevant time, nothing to render as a VEVENT
		}
		end := a.Event.Add(time.Hour)
		if a.Expires != nil && a.Expires.After(*a.Event) {
			end = *a.Expires
		}
		summary := a.Contents
		if realmName != "" {
			summary = fmt.Sprintf("[%s] %s", realmName, a.Contents)
		}
		out = append(out, Event{
			UID:        fmt.Sprintf("%s-%d@spadina", strings.ReplaceAll(realmName, " ", "_"), i),
			Summary:    escapeText(summary),
			RealmName:  realmName,
			Start:      *a.Event,
			End:        end,
			LastModify: *a.Event,
		})
	}
	return out
}

// ErrInvalidID is returned for a calendar id that doesn't verify, letting
// the handler answer 403/404 without distinguishing malformed from
// tampered-with (spec.md §6 "id is an opaque calendar id; ownership is
// checked").
var ErrInvalidID = errors.New("calendar: invalid calendar id")

// IDIssuer mints and verifies the opaque, unauthenticated `id` query
// parameter a calendar client polls without a bearer token each refresh
// (unlike every other endpoint in spec.md §6, this one has no Authorization
// header to carry, since calendar apps don't attach one). The id is an
// HMAC-SHA256 tag over the owning player's name, keyed by a secret private
// to this server — a calendar app that doesn't already hold the id cannot
// discover or forge another player's calendar URL.
type IDIssuer struct {
	secret []byte
}

func NewIDIssuer(secret []byte) *IDIssuer { return &IDIssuer{secret: secret} }

// Issue mints an opaque id naming owner as the calendar's principal.
func (i *IDIssuer) Issue(owner string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(owner))
	tag := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString([]byte(owner)) + "." + base64.RawURLEncoding.EncodeToString(tag)
}

// Verify checks id and returns the owning player name it was issued for.
func (i *IDIssuer) Verify(id string) (string, error) {
	parts := strings.SplitN(id, ".", 2)
	if len(parts) != 2 {
		return "", ErrInvalidID
	}
	ownerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidID
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidID
	}
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(ownerBytes)
	want := mac.Sum(nil)
	if !hmac.Equal(want, tag) {
		return "", ErrInvalidID
	}
	return string(ownerBytes), nil
}
