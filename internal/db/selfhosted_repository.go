package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/la2go/internal/model"
)

// SelfHostedRepository persists the self-hosted destination's ACLs,
// announcements, chat, and home-listing cells, keyed by the owner's player
// name rather than a db_id (the self-hosted destination IS the player row;
// spec.md §6 "player(id, name, ..., *_acl columns, ...)"). Implements
// selfhosted.Store.
type SelfHostedRepository struct {
	pool *pgxpool.Pool
}

func NewSelfHostedRepository(pool *pgxpool.Pool) *SelfHostedRepository {
	return &SelfHostedRepository{pool: pool}
}

func (r *SelfHostedRepository) SaveAccessACL(ownerName string, acl model.AccessList[model.Privilege]) error {
	data, err := json.Marshal(acl)
	if err != nil {
		return fmt.Errorf("encoding access_acl for %s: %w", ownerName, err)
	}
	if _, err := r.pool.Exec(context.Background(),
		`UPDATE players SET access_acl = $1 WHERE name = $2`, data, ownerName); err != nil {
		return fmt.Errorf("saving access_acl for %s: %w", ownerName, err)
	}
	return nil
}

func (r *SelfHostedRepository) SaveAdminACL(ownerName string, acl model.AccessList[model.SimpleAccess]) error {
	data, err := json.Marshal(acl)
	if err != nil {
		return fmt.Errorf("encoding admin_acl for %s: %w", ownerName, err)
	}
	if _, err := r.pool.Exec(context.Background(),
		`UPDATE players SET admin_acl = $1 WHERE name = $2`, data, ownerName); err != nil {
		return fmt.Errorf("saving admin_acl for %s: %w", ownerName, err)
	}
	return nil
}

func (r *SelfHostedRepository) SaveAnnouncements(ownerName string, announcements []model.Announcement) error {
	data, err := json.Marshal(announcements)
	if err != nil {
		return fmt.Errorf("encoding announcements for %s: %w", ownerName, err)
	}
	if _, err := r.pool.Exec(context.Background(),
		`UPDATE players SET announcements = $1 WHERE name = $2`, data, ownerName); err != nil {
		return fmt.Errorf("saving announcements for %s: %w", ownerName, err)
	}
	return nil
}

func (r *SelfHostedRepository) SaveNameAndDirectory(ownerName, name string, inDirectory bool) error {
	_, err := r.pool.Exec(context.Background(),
		`UPDATE players SET home_name = $1, in_directory = $2 WHERE name = $3`, name, inDirectory, ownerName)
	if err != nil {
		return fmt.Errorf("saving home name/directory for %s: %w", ownerName, err)
	}
	return nil
}

func (r *SelfHostedRepository) SaveHostChat(ownerName string, sender model.Principal, body string, created time.Time) error {
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO host_chat (owner_name, sender_name, sender_server, body, created) VALUES ($1, $2, $3, $4, $5)`,
		ownerName, sender.Name, sender.Server, body, created)
	if err != nil {
		return fmt.Errorf("saving host chat for %s: %w", ownerName, err)
	}
	return nil
}
