// internal/history/store.go

package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pocketssh/internal/storage"
)

const historyFileName = "history.json"

type historyFile struct {
	Commands []string `json:"commands"`
}

// Store zapisuje historię na nośniku jako JSON; każdy zapis
// przepisuje cały plik
type Store struct {
	path string
}

func NewStore(st *storage.Store) (*Store, error) {
	root, err := st.FirstRoot()
	if err != nil {
		return nil, fmt.Errorf("no writable storage root for history: %v", err)
	}
	return &Store{path: filepath.Join(root, historyFileName)}, nil
}

// Load wczytuje zapisane komendy; brak pliku to pusta historia
func (s *Store) Load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading history file: %v", err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		// Uszkodzony plik nie blokuje startu; zapis go nadpisze
		return nil, nil
	}
	return file.Commands, nil
}

// Save przepisuje plik historii w całości
func (s *Store) Save(commands []string) error {
	data, err := json.MarshalIndent(historyFile{Commands: commands}, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling history: %v", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("error writing history file: %v", err)
	}
	return nil
}

// SaveIfDirty zapisuje i kasuje flagę tylko przy zmianach
func (s *Store) SaveIfDirty(h *History) error {
	if !h.Dirty() {
		return nil
	}
	if err := s.Save(h.Entries()); err != nil {
		return err
	}
	h.MarkSaved()
	return nil
}
