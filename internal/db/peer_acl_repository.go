package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/la2go/internal/model"
)

// PeerACLRepository persists the server-wide peer ban list and the access
// policy categories exposed at GET /api/access (spec.md §6
// "serveracl(category, acl); bannedpeers(server)").
type PeerACLRepository struct {
	pool *pgxpool.Pool
}

func NewPeerACLRepository(pool *pgxpool.Pool) *PeerACLRepository { return &PeerACLRepository{pool: pool} }

// BannedPeers returns the full ban set, ready to hand to
// directory.Directory.ApplyPeerBans.
func (r *PeerACLRepository) BannedPeers() (map[string]bool, error) {
	rows, err := r.pool.Query(context.Background(), `SELECT server FROM banned_peers`)
	if err != nil {
		return nil, fmt.Errorf("querying banned peers: %w", err)
	}
	defer rows.Close()

	bans := map[string]bool{}
	for rows.Next() {
		var server string
		if err := rows.Scan(&server); err != nil {
			return nil, fmt.Errorf("scanning banned peer: %w", err)
		}
		bans[server] = true
	}
	return bans, rows.Err()
}

func (r *PeerACLRepository) BanPeer(server string) error {
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO banned_peers (server) VALUES ($1) ON CONFLICT DO NOTHING`, server)
	if err != nil {
		return fmt.Errorf("banning peer %q: %w", server, err)
	}
	return nil
}

func (r *PeerACLRepository) UnbanPeer(server string) error {
	_, err := r.pool.Exec(context.Background(), `DELETE FROM banned_peers WHERE server = $1`, server)
	if err != nil {
		return fmt.Errorf("unbanning peer %q: %w", server, err)
	}
	return nil
}

// ServerACL returns the named access-policy category's rule list (spec.md
// §6 "GET /api/access"), or the zero value if the category has never been
// written.
func (r *PeerACLRepository) ServerACL(category string) (model.AccessList[model.SimpleAccess], error) {
	var data []byte
	err := r.pool.QueryRow(context.Background(),
		`SELECT acl FROM server_acl WHERE category = $1`, category).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AccessList[model.SimpleAccess]{}, nil
	}
	if err != nil {
		return model.AccessList[model.SimpleAccess]{}, fmt.Errorf("querying server acl %q: %w", category, err)
	}
	var acl model.AccessList[model.SimpleAccess]
	if err := json.Unmarshal(data, &acl); err != nil {
		return model.AccessList[model.SimpleAccess]{}, fmt.Errorf("decoding server acl %q: %w", category, err)
	}
	return acl, nil
}

func (r *PeerACLRepository) SaveServerACL(category string, acl model.AccessList[model.SimpleAccess]) error {
	data, err := json.Marshal(acl)
	if err != nil {
		return fmt.Errorf("encoding server acl %q: %w", category, err)
	}
	_, err = r.pool.Exec(context.Background(),
		`INSERT INTO server_acl (category, acl) VALUES ($1, $2)
		 ON CONFLICT (category) DO UPDATE SET acl = EXCLUDED.acl`, category, data)
	if err != nil {
		return fmt.Errorf("saving server acl %q: %w", category, err)
	}
	return nil
}
