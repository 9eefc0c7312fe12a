package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Backup errors.
var (
	ErrBackupNotFound  = errors.New("backup not found")
	ErrBackupCorrupted = errors.New("backup integrity check failed")
	ErrBackupExists    = errors.New("backup already exists")
)

const maxAutoBackups = 5

// BackupInfo describes a database snapshot.
type BackupInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
	IsAuto        bool           `json:"is_auto"`
}

// BackupDir returns the directory snapshots of dbPath are kept in.
func BackupDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "backups")
}

// Backup snapshots the database with VACUUM INTO and writes a JSON sidecar
// describing it. An empty tag yields a timestamped one.
func (s *SQLiteStorage) Backup(ctx context.Context, tag, description string) (*BackupInfo, error) {
	return s.backup(ctx, tag, description, false)
}

// AutoBackup snapshots the database before an operation named by reason and
// keeps only the most recent automatic snapshots.
func (s *SQLiteStorage) AutoBackup(ctx context.Context, reason string) (*BackupInfo, error) {
	tag := fmt.Sprintf("auto-%s-%s", reason, time.Now().UTC().Format("20060102-150405"))
	info, err := s.backup(ctx, tag, "Automatic backup before "+reason, true)
	if err != nil {
		return nil, err
	}

	if err := pruneAutoBackups(BackupDir(s.dbPath)); err != nil {
		slog.Warn("failed to prune old automatic backups", "error", err)
	}
	return info, nil
}

func (s *SQLiteStorage) backup(ctx context.Context, tag, description string, auto bool) (*BackupInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if s.dbPath == ":memory:" {
		return nil, errors.New("cannot back up an in-memory database")
	}
	if tag == "" {
		tag = "backup-" + time.Now().UTC().Format("20060102-150405")
	}
	if err := validateBackupID(tag); err != nil {
		return nil, err
	}

	dir := BackupDir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	dest, err := filepath.Abs(filepath.Join(dir, tag+".db"))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dest); err == nil {
		return nil, ErrBackupExists
	}
	if strings.ContainsAny(dest, `'";`) {
		return nil, fmt.Errorf("invalid backup path: %s", dest)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	// #nosec G201 - dest is built from a validated tag and checked for quotes
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", err)
	}

	stat, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	info := &BackupInfo{
		ID:            tag,
		CreatedAt:     time.Now().UTC(),
		Description:   description,
		FileSize:      stat.Size(),
		RowCounts:     s.rowCounts(ctx),
		SchemaVersion: version,
		IsAuto:        auto,
	}
	if err := writeBackupInfo(filepath.Join(dir, tag+".meta.json"), info); err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			slog.Error("failed to remove backup after metadata failure", "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save backup metadata: %w", err)
	}

	slog.Info("Created database backup", "id", tag, "size", info.FileSize)
	return info, nil
}

func (s *SQLiteStorage) rowCounts(ctx context.Context) map[string]int {
	queries := map[string]string{
		"users":                   "SELECT COUNT(*) FROM users",
		"classified_transactions": "SELECT COUNT(*) FROM classified_transactions",
		"verifications":           "SELECT COUNT(*) FROM verifications",
		"lookup_attempts":         "SELECT COUNT(*) FROM lookup_attempts",
	}

	counts := make(map[string]int, len(queries))
	for table, query := range queries {
		var n int
		// Tables missing from older schemas count as empty
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err == nil {
			counts[table] = n
		} else {
			counts[table] = 0
		}
	}
	return counts
}

// ListBackups returns the snapshots in dir, newest first. Unreadable
// sidecars are skipped.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := readBackupInfo(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Debug("skipping unreadable backup metadata", "file", entry.Name(), "error", err)
			continue
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// RestoreBackup replaces the database at dbPath with snapshot id. The
// database must not be open. The previous file is kept as dbPath+".pre-restore".
func RestoreBackup(dbPath, id string) error {
	if err := validateBackupID(id); err != nil {
		return err
	}

	src := filepath.Join(BackupDir(dbPath), id+".db")
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to access backup: %w", err)
	}
	if err := checkIntegrity(src); err != nil {
		return fmt.Errorf("%w: %w", ErrBackupCorrupted, err)
	}

	if _, err := os.Stat(dbPath); err == nil {
		if err := copyFile(dbPath, dbPath+".pre-restore"); err != nil {
			return fmt.Errorf("failed to save current database: %w", err)
		}
	}
	// Stale WAL files would be replayed over the restored snapshot
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s file: %w", suffix, err)
		}
	}

	if err := copyFile(src, dbPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	return nil
}

// DeleteBackup removes snapshot id and its metadata from dir.
func DeleteBackup(dir, id string) error {
	if err := validateBackupID(id); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, id+".db")); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to remove backup: %w", err)
	}
	if err := os.Remove(filepath.Join(dir, id+".meta.json")); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove backup metadata", "id", id, "error", err)
	}
	return nil
}

func pruneAutoBackups(dir string) error {
	backups, err := ListBackups(dir)
	if err != nil {
		return err
	}

	kept := 0
	for _, b := range backups {
		if !b.IsAuto {
			continue
		}
		kept++
		if kept > maxAutoBackups {
			if err := DeleteBackup(dir, b.ID); err != nil {
				slog.Debug("failed to delete old automatic backup", "id", b.ID, "error", err)
			}
		}
	}
	return nil
}

func validateBackupID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\'";`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid backup id %q", id)
	}
	return nil
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return errors.New(result)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(filepath.Clean(tmp), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func writeBackupInfo(path string, info *BackupInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readBackupInfo(path string) (*BackupInfo, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var info BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
