package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/la2go/internal/model"
)

func TestSelfHostedRepository_SaveAndReadBack(t *testing.T) {
	pool := setupTestDB(t)
	_, err := pool.Exec(t.Context(), `INSERT INTO players (name) VALUES ('alice')`)
	require.NoError(t, err)

	repo := NewSelfHostedRepository(pool)
	require.NoError(t, repo.SaveAccessACL("alice", model.AccessList[model.Privilege]{Default: model.PrivilegeAdmin}))
	require.NoError(t, repo.SaveNameAndDirectory("alice", "Alice's Place", true))
	require.NoError(t, repo.SaveHostChat("alice", model.Local("bob"), "hello", time.Now()))

	var homeName string
	var inDirectory bool
	require.NoError(t, pool.QueryRow(t.Context(),
		`SELECT home_name, in_directory FROM players WHERE name = 'alice'`).Scan(&homeName, &inDirectory))
	assert.Equal(t, "Alice's Place", homeName)
	assert.True(t, inDirectory)

	var chatCount int
	require.NoError(t, pool.QueryRow(t.Context(),
		`SELECT count(*) FROM host_chat WHERE owner_name = 'alice'`).Scan(&chatCount))
	assert.Equal(t, 1, chatCount)
}
