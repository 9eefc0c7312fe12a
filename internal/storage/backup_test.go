package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup_CreateAndList(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	createUser(t, store, "u1", 2)
	require.NoError(t, store.IssueVerification(ctx, testRecord("u1", "GIG-AAAA")))

	info, err := store.Backup(ctx, "before-audit", "manual snapshot")
	require.NoError(t, err)
	assert.Equal(t, "before-audit", info.ID)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Equal(t, 1, info.RowCounts["users"])
	assert.Equal(t, 1, info.RowCounts["verifications"])
	assert.Positive(t, info.FileSize)
	assert.FileExists(t, filepath.Join(BackupDir(store.dbPath), "before-audit.db"))

	_, err = store.Backup(ctx, "before-audit", "")
	assert.ErrorIs(t, err, ErrBackupExists)

	backups, err := ListBackups(BackupDir(store.dbPath))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "manual snapshot", backups[0].Description)
	assert.False(t, backups[0].IsAuto)
}

func TestBackup_InvalidTags(t *testing.T) {
	store := createTestStorage(t)

	for _, tag := range []string{"../escape", "a/b", `quote'd`, "semi;colon"} {
		t.Run(tag, func(t *testing.T) {
			_, err := store.Backup(context.Background(), tag, "")
			assert.Error(t, err)
		})
	}
}

func TestAutoBackup_Prunes(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	dir := BackupDir(store.dbPath)

	// Auto tags are second-resolution; seed older ones directly.
	for i := range maxAutoBackups + 2 {
		info, err := store.backup(ctx, "auto-seed-"+string(rune('a'+i)), "seed", true)
		require.NoError(t, err)
		info.CreatedAt = baseTime.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, writeBackupInfo(filepath.Join(dir, info.ID+".meta.json"), info))
	}

	_, err := store.AutoBackup(ctx, "migrate")
	require.NoError(t, err)

	backups, err := ListBackups(dir)
	require.NoError(t, err)
	assert.Len(t, backups, maxAutoBackups)
}

func TestRestoreBackup(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "gigproof.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	createUser(t, store, "u1", 1)

	_, err = store.Backup(ctx, "one-user", "")
	require.NoError(t, err)

	createUser(t, store, "u2", 1)
	require.NoError(t, store.Close())

	require.NoError(t, RestoreBackup(dbPath, "one-user"))
	assert.FileExists(t, dbPath+".pre-restore")

	restored, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = restored.Close() })

	users, err := restored.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)

	assert.ErrorIs(t, RestoreBackup(dbPath, "missing"), ErrBackupNotFound)
}

func TestRestoreBackup_Corrupted(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gigproof.db")
	dir := BackupDir(dbPath)
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.db"), []byte("not a database"), 0600))

	assert.ErrorIs(t, RestoreBackup(dbPath, "junk"), ErrBackupCorrupted)
}

func TestDeleteBackup(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)
	dir := BackupDir(store.dbPath)

	_, err := store.Backup(ctx, "temp", "")
	require.NoError(t, err)
	require.NoError(t, DeleteBackup(dir, "temp"))

	backups, err := ListBackups(dir)
	require.NoError(t, err)
	assert.Empty(t, backups)
	assert.ErrorIs(t, DeleteBackup(dir, "temp"), ErrBackupNotFound)
}
