package simplefin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoAccess is returned by LoadAccess when no access URL was saved.
var ErrNoAccess = errors.New("no simplefin access saved")

// Access is a claimed SimpleFIN access URL saved for one user.
type Access struct {
	ClaimedAt time.Time `json:"claimed_at"`
	UserID    string    `json:"user_id"`
	AccessURL string    `json:"access_url"`
}

// AccessPath returns where dir keeps userID's access URL.
func AccessPath(dir, userID string) string {
	return filepath.Join(dir, "simplefin", userID+".json")
}

// LoadAccess reads a saved access URL. A missing file yields ErrNoAccess.
func LoadAccess(path string) (*Access, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoAccess
		}
		return nil, err
	}

	var access Access
	if err := json.Unmarshal(data, &access); err != nil {
		return nil, fmt.Errorf("failed to decode simplefin access: %w", err)
	}
	if access.AccessURL == "" {
		return nil, ErrNoAccess
	}
	return &access, nil
}

// SaveAccess writes access to path, readable by the owner only.
func SaveAccess(path string, access *Access) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create simplefin directory: %w", err)
	}

	data, err := json.MarshalIndent(access, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
