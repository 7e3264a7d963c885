// Package checkpoint persists one ImportState JSON document per source. Every
// write atomically replaces the whole file, so a crash mid-write can never
// leave a torn checkpoint behind.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haseab/retrace-sub007/internal/models"
)

type Store struct {
	dir string
}

// NewStore creates the checkpoint directory if needed. dir is typically
// <data-dir>/checkpoints.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(source string) string {
	// Source identifiers are short names like "rewind", but guard against
	// anything path-like all the same.
	name := strings.ReplaceAll(source, string(filepath.Separator), "_")
	return filepath.Join(s.dir, name+".json")
}

// Load reads the persisted state for a source. A missing file is not an
// error: it returns (nil, nil) and the caller starts fresh.
func (s *Store) Load(source string) (*models.ImportState, error) {
	data, err := os.ReadFile(s.path(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint for %s: %w", source, err)
	}

	state := &models.ImportState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse checkpoint for %s: %w", source, err)
	}
	return state, nil
}

// Save atomically replaces the source's checkpoint file: write to a temp file
// in the same directory, then rename over the target.
func (s *Store) Save(state *models.ImportState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint for %s: %w", state.Source, err)
	}
	data = append(data, '\n')

	target := s.path(state.Source)
	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint for %s: %w", state.Source, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint for %s: %w", state.Source, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp checkpoint for %s: %w", state.Source, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint for %s: %w", state.Source, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", state.Source, err)
	}
	return nil
}
