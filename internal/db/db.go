// Package db implements the persistence layer (spec.md §6 "Persisted state
// schema") behind internal/realm.Store, internal/selfhosted.Store,
// internal/directory.Store, internal/peer.DMStore, and the
// internal/session bookmark/direct-message store contracts. Grounded on
// the teacher's internal/db/db.go (pgxpool connection, per-aggregate
// repository structs) and internal/db/migrate.go (goose + embedded FS).
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool shared by every repository.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a DB handle.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() { d.pool.Close() }

// Pool returns the underlying pgx pool, for goose migrations and tests.
func (d *DB) Pool() *pgxpool.Pool { return d.pool }

// Realms returns a repository implementing realm.Store and the realm half
// of directory.Store.
func (d *DB) Realms() *RealmRepository { return &RealmRepository{pool: d.pool} }

// SelfHosted returns a repository implementing selfhosted.Store.
func (d *DB) SelfHosted() *SelfHostedRepository { return &SelfHostedRepository{pool: d.pool} }

// Players returns a repository for account/principal bookkeeping (auth,
// bookmarks, public keys).
func (d *DB) Players() *PlayerRepository { return &PlayerRepository{pool: d.pool} }

// DirectMessages returns a repository implementing peer.DMStore and the
// session direct-message store contract.
func (d *DB) DirectMessages() *DirectMessageRepository {
	return &DirectMessageRepository{pool: d.pool}
}

// PeerACL returns a repository for the server-wide peer ACL/ban list.
func (d *DB) PeerACL() *PeerACLRepository { return &PeerACLRepository{pool: d.pool} }
