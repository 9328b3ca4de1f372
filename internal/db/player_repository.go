package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/la2go/internal/model"
	"github.com/udisondev/la2go/internal/wire"
)

// Player is one player row: account credentials plus the bits the client
// GUI needs at login (spec.md §6 "player(id, name, debuted, avatar,
// last_login, *_acl columns, waiting_for_train)").
type Player struct {
	Name         string
	PasswordHash string
	Debuted      time.Time
	Avatar       []byte
	LastLogin    *time.Time
}

// PlayerRepository persists accounts, bookmarks, and public keys.
// Implements session.BookmarkStore; also the account/public-key backend
// internal/auth reads through to. Grounded on the teacher's
// PostgresAccountRepository GetOrCreateAccount shape (ON CONFLICT DO
// NOTHING + re-select, thread-safe without a transaction).
type PlayerRepository struct {
	pool *pgxpool.Pool
}

func NewPlayerRepository(pool *pgxpool.Pool) *PlayerRepository { return &PlayerRepository{pool: pool} }

// GetPlayer retrieves a player by name. Returns nil, nil if not found.
func (r *PlayerRepository) GetPlayer(name string) (*Player, error) {
	var p Player
	err := r.pool.QueryRow(context.Background(),
		`SELECT name, password_hash, debuted, avatar, last_login FROM players WHERE name = $1`, name,
	).Scan(&p.Name, &p.PasswordHash, &p.Debuted, &p.Avatar, &p.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying player %q: %w", name, err)
	}
	return &p, nil
}

// GetOrCreatePlayer atomically fetches an existing player row or creates
// one with the given password hash, thread-safe under concurrent first
// logins (teacher: PostgresAccountRepository.GetOrCreateAccount).
func (r *PlayerRepository) GetOrCreatePlayer(name, passwordHash string) (*Player, error) {
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO players (name, password_hash, debuted) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		name, passwordHash, time.Now())
	if err != nil {
		return nil, fmt.Errorf("inserting player %q: %w", name, err)
	}
	p, err := r.GetPlayer(name)
	if err != nil {
		return nil, fmt.Errorf("getting player %q after insert: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("player %q not found after insert (unexpected)", name)
	}
	return p, nil
}

// UpdateLastLogin records a successful login's timestamp.
func (r *PlayerRepository) UpdateLastLogin(name string, when time.Time) error {
	_, err := r.pool.Exec(context.Background(),
		`UPDATE players SET last_login = $1 WHERE name = $2`, when, name)
	if err != nil {
		return fmt.Errorf("updating last login for %q: %w", name, err)
	}
	return nil
}

// Announcements returns a player's home-destination announcements plus the
// home's directory name, for the calendar export's "global" section
// (spec.md §6 "player(..., announcements, ...)"; the self-hosted
// destination a calendar id's owner controls stands in for a
// realm-independent "global" announcement list). Returns false if the
// player doesn't exist.
func (r *PlayerRepository) Announcements(name string) ([]model.Announcement, string, bool, error) {
	var raw []byte
	var homeName string
	err := r.pool.QueryRow(context.Background(),
		`SELECT announcements, home_name FROM players WHERE name = $1`, name,
	).Scan(&raw, &homeName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("querying announcements for %q: %w", name, err)
	}
	var anns []model.Announcement
	if err := json.Unmarshal(raw, &anns); err != nil {
		return nil, "", false, fmt.Errorf("decoding announcements for %q: %w", name, err)
	}
	return anns, homeName, true, nil
}

// SavePublicKey stores (or replaces) a named public key for key-exchange
// login (spec.md §6 "publickey(player, name, public_key)").
func (r *PlayerRepository) SavePublicKey(player, keyName string, publicKey []byte) error {
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO public_keys (player_name, key_name, public_key) VALUES ($1, $2, $3)
		 ON CONFLICT (player_name, key_name) DO UPDATE SET public_key = EXCLUDED.public_key`,
		player, keyName, publicKey)
	if err != nil {
		return fmt.Errorf("saving public key %q for %q: %w", keyName, player, err)
	}
	return nil
}

// PublicKey retrieves a named public key. Returns nil, nil if not found.
func (r *PlayerRepository) PublicKey(player, keyName string) ([]byte, error) {
	var key []byte
	err := r.pool.QueryRow(context.Background(),
		`SELECT public_key FROM public_keys WHERE player_name = $1 AND key_name = $2`, player, keyName,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying public key %q for %q: %w", keyName, player, err)
	}
	return key, nil
}

// AddBookmark inserts (or no-ops on duplicate) one of a player's saved
// destinations (session.BookmarkStore; spec.md §6 "bookmark(player, kind,
// asset)").
func (r *PlayerRepository) AddBookmark(player model.Principal, kind, name string) error {
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO bookmarks (player_name, kind, name) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		player.String(), kind, name)
	if err != nil {
		return fmt.Errorf("adding bookmark %s/%s for %s: %w", kind, name, player, err)
	}
	return nil
}

func (r *PlayerRepository) RemoveBookmark(player model.Principal, kind, name string) error {
	_, err := r.pool.Exec(context.Background(),
		`DELETE FROM bookmarks WHERE player_name = $1 AND kind = $2 AND name = $3`,
		player.String(), kind, name)
	if err != nil {
		return fmt.Errorf("removing bookmark %s/%s for %s: %w", kind, name, player, err)
	}
	return nil
}

func (r *PlayerRepository) ListBookmarks(player model.Principal) ([]wire.Bookmark, error) {
	rows, err := r.pool.Query(context.Background(),
		`SELECT kind, name FROM bookmarks WHERE player_name = $1 ORDER BY kind, name`, player.String())
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks for %s: %w", player, err)
	}
	defer rows.Close()

	var out []wire.Bookmark
	for rows.Next() {
		var b wire.Bookmark
		if err := rows.Scan(&b.Kind, &b.Name); err != nil {
			return nil, fmt.Errorf("scanning bookmark for %s: %w", player, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
