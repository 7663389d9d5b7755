// internal/keys/keys.go

package keys

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pocketssh/internal/apperr"
	"pocketssh/internal/models"
	"pocketssh/internal/storage"
)

const keyFileExt = ".pem"

// Registry trzyma klucze wczytane do pamięci. Materiał klucza nie jest
// parsowany przy wczytaniu; dekodowanie odkłada się do uwierzytelnienia.
type Registry struct {
	storage *storage.Store
	keys    []models.Key
}

func NewRegistry(st *storage.Store) *Registry {
	return &Registry{storage: st}
}

// NormalizeStem obniża wielkość liter, ucina rozszerzenie i usuwa
// znaki niealfanumeryczne. Obie strony porównań przechodzą przez to samo.
func NormalizeStem(name string) string {
	base := strings.ToLower(filepath.Base(name))
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}

	var b strings.Builder
	for i := 0; i < len(base); i++ {
		c := base[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// shortPrefix zwraca część nazwy przed znacznikiem skróconej nazwy 8.3,
// albo "" gdy nazwa nie jest skrócona
func shortPrefix(name string) string {
	idx := storage.TildeIndex(name)
	if idx <= 0 {
		return ""
	}
	return NormalizeStem(name[:idx])
}

// Load skanuje katalogi kluczy oraz korzenie nośnika i wczytuje
// wszystkie pliki .pem. Pliki metadanych systemu plików są pomijane.
func (r *Registry) Load() error {
	r.keys = nil
	seen := make(map[string]bool)

	dirs := append(r.storage.KeysDirs(), r.storage.Roots()...)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var names []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if storage.IsMetadataFile(name) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(name), keyFileExt) {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			lower := strings.ToLower(name)
			if seen[lower] {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil || len(data) == 0 {
				continue
			}
			seen[lower] = true
			r.keys = append(r.keys, models.NewKey(name, data))
		}
	}

	return nil
}

func (r *Registry) Keys() []models.Key {
	return r.keys
}

func (r *Registry) Len() int {
	return len(r.keys)
}

// Get dopasowuje dokładną (małe litery) nazwę pliku klucza
func (r *Registry) Get(name string) (models.Key, bool) {
	lower := strings.ToLower(name)
	for _, key := range r.keys {
		if key.Name == lower {
			return key, true
		}
	}
	return models.Key{}, false
}

// Match dopasowuje wpis IdentityFile do wczytanego klucza. Kolejne
// progi: dokładna nazwa, równość rdzeni, prefiks w dowolną stronę,
// prefiks skróconej nazwy 8.3. Próg liczy się tylko przy dokładnie
// jednym kandydacie; remis oznacza brak dopasowania. Gdy żaden próg
// nie trafi, a wczytany jest dokładnie jeden klucz, wybierany jest on.
func (r *Registry) Match(identity string) (models.Key, bool) {
	base := strings.ToLower(filepath.Base(identity))
	queryStem := NormalizeStem(identity)
	queryShort := shortPrefix(filepath.Base(identity))

	if key, ok := r.Get(base); ok {
		return key, true
	}
	if queryStem == "" {
		return r.soleCandidate()
	}

	unique := func(indices []int) (models.Key, bool) {
		if len(indices) == 1 {
			return r.keys[indices[0]], true
		}
		return models.Key{}, false
	}

	var stemEqual, prefix, short []int
	for i, key := range r.keys {
		keyStem := NormalizeStem(key.Name)
		if keyStem == "" {
			continue
		}
		if keyStem == queryStem {
			stemEqual = append(stemEqual, i)
			continue
		}
		if strings.HasPrefix(keyStem, queryStem) || strings.HasPrefix(queryStem, keyStem) {
			prefix = append(prefix, i)
			continue
		}
		if keyShort := shortPrefix(key.Name); keyShort != "" && strings.HasPrefix(queryStem, keyShort) {
			short = append(short, i)
			continue
		}
		if queryShort != "" && strings.HasPrefix(keyStem, queryShort) {
			short = append(short, i)
		}
	}

	if len(stemEqual) > 0 {
		return unique(stemEqual)
	}
	if len(prefix) > 0 {
		return unique(prefix)
	}
	if len(short) > 0 {
		return unique(short)
	}
	return r.soleCandidate()
}

func (r *Registry) soleCandidate() (models.Key, bool) {
	if len(r.keys) == 1 {
		return r.keys[0], true
	}
	return models.Key{}, false
}

// PathCandidates rozwija wpis IdentityFile na ścieżki do sprawdzenia
// na nośniku: tylda i ścieżki domowe mapują na katalogi kluczy, goła
// nazwa dostaje też wariant z rozszerzeniem .pem
func (r *Registry) PathCandidates(identity string) []string {
	cleaned := strings.TrimSpace(identity)
	if cleaned == "" {
		return nil
	}

	base := filepath.Base(cleaned)
	var out []string
	seen := make(map[string]bool)
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, path)
	}

	if filepath.IsAbs(cleaned) {
		add(cleaned)
	}

	names := []string{base}
	if filepath.Ext(base) == "" {
		names = append(names, base+keyFileExt)
	}

	for _, dir := range r.storage.KeysDirs() {
		for _, name := range names {
			add(filepath.Join(dir, name))
		}
	}
	for _, root := range r.storage.Roots() {
		for _, name := range names {
			add(filepath.Join(root, name))
		}
	}

	return out
}

// ResolveOnDisk wskazuje plik klucza na nośniku bez wczytywania
// rejestru: dokładna nazwa wygrywa, potem rdzeń, prefiks i skrócona
// nazwa 8.3
func (r *Registry) ResolveOnDisk(identity string) (string, error) {
	for _, path := range r.PathCandidates(identity) {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	base := strings.ToLower(filepath.Base(identity))
	queryStem := NormalizeStem(identity)

	bestScore := 0
	bestPath := ""
	consider := func(dir, name string) {
		lower := strings.ToLower(name)
		score := 0
		switch {
		case lower == base:
			score = 300
		case NormalizeStem(name) == queryStem && queryStem != "":
			score = 250
		case queryStem != "" && strings.HasPrefix(NormalizeStem(name), queryStem):
			score = 220
		default:
			if sp := shortPrefix(name); sp != "" && strings.HasPrefix(queryStem, sp) {
				score = 200
			}
		}
		if score > bestScore {
			bestScore = score
			bestPath = filepath.Join(dir, name)
		}
	}

	dirs := append(r.storage.KeysDirs(), r.storage.Roots()...)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || storage.IsMetadataFile(entry.Name()) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(entry.Name()), keyFileExt) {
				continue
			}
			consider(dir, entry.Name())
		}
	}

	if bestPath == "" {
		return "", apperr.New(apperr.IdentityUnavailable, "no key file matches "+identity, nil)
	}
	return bestPath, nil
}
