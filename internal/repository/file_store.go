package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"kasabot/internal/model"
)

type fileStore struct{ path string }

// NewFileKasaStore stores the collection as one JSON document
// ({"<user>": [device, ...]}), replaced atomically on every save.
func NewFileKasaStore(path string) KasaStore { return &fileStore{path: path} }

func (s *fileStore) LoadAll(_ context.Context) (map[string][]model.Kasa, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]model.Kasa{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string][]model.Kasa{}, nil
	}

	var raw map[string][]kasaSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}

	users := make(map[string][]model.Kasa, len(raw))
	for userID, snaps := range raw {
		list := make([]model.Kasa, 0, len(snaps))
		for _, snap := range snaps {
			k, err := fromSnapshot(userID, snap)
			if err != nil {
				return nil, fmt.Errorf("user %s: %w", userID, err)
			}
			list = append(list, k)
		}
		users[userID] = list
	}
	return users, nil
}

func (s *fileStore) SaveAll(_ context.Context, users map[string][]model.Kasa) error {
	raw := make(map[string][]kasaSnapshot, len(users))
	for userID, list := range users {
		snaps := make([]kasaSnapshot, 0, len(list))
		for _, k := range list {
			snaps = append(snaps, toSnapshot(k))
		}
		raw[userID] = snaps
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
