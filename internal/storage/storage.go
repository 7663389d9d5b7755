// internal/storage/storage.go

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// KeysDirName to podkatalog z kluczami i plikami konfiguracyjnymi
	KeysDirName = "ssh_keys"

	// RootsEnv pozwala nadpisać listę katalogów bazowych (oddzielone ':')
	RootsEnv = "POCKETSSH_ROOTS"
)

// Store daje dostęp do wymiennego nośnika przez uporządkowaną listę
// katalogów bazowych. Karta może być zamontowana pod różnymi ścieżkami
// i edytowana na zewnątrz, więc nic tutaj nie jest cache'owane.
type Store struct {
	roots []string
}

// NewStore tworzy magazyn; pusta lista oznacza domyślne katalogi
func NewStore(roots ...string) *Store {
	if len(roots) == 0 {
		roots = DefaultRoots()
	}
	return &Store{roots: roots}
}

// DefaultRoots zwraca katalogi bazowe: z POCKETSSH_ROOTS albo
// ~/.config/pocketssh i bieżący katalog jako zapas
func DefaultRoots() []string {
	if env := os.Getenv(RootsEnv); env != "" {
		var roots []string
		for _, part := range strings.Split(env, ":") {
			if part != "" {
				roots = append(roots, part)
			}
		}
		if len(roots) > 0 {
			return roots
		}
	}

	var roots []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(homeDir, ".config", "pocketssh"))
	}
	roots = append(roots, ".")
	return roots
}

// Roots zwraca katalogi bazowe w kolejności preferencji
func (s *Store) Roots() []string {
	return s.roots
}

// KeysDirs zwraca katalogi z kluczami dla każdego korzenia
func (s *Store) KeysDirs() []string {
	dirs := make([]string, 0, len(s.roots))
	for _, root := range s.roots {
		dirs = append(dirs, filepath.Join(root, KeysDirName))
	}
	return dirs
}

// FirstRoot zwraca pierwszy istniejący katalog bazowy
func (s *Store) FirstRoot() (string, error) {
	for _, root := range s.roots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return root, nil
		}
	}
	return "", fmt.Errorf("no storage root available")
}

// ReadFile czyta plik bez pośredniego cache
func (s *Store) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// IsMetadataFile odfiltrowuje pliki metadanych (AppleDouble i ich
// krótkie aliasy FAT, np. _SSH_C~1)
func IsMetadataFile(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	if strings.HasPrefix(lower, "._") {
		return true
	}
	return lower != "" && lower[0] == '_' && strings.Contains(lower, "~")
}

// TildeIndex zwraca numer po '~' w krótkiej nazwie FAT albo -1
func TildeIndex(name string) int {
	tilde := strings.IndexByte(name, '~')
	if tilde < 0 || tilde+1 >= len(name) {
		return -1
	}
	value := 0
	sawDigit := false
	for i := tilde + 1; i < len(name); i++ {
		ch := name[i]
		if ch < '0' || ch > '9' {
			break
		}
		sawDigit = true
		value = value*10 + int(ch-'0')
	}
	if !sawDigit {
		return -1
	}
	return value
}

// candidateScore ocenia nazwę pliku względem oczekiwanej nazwy
// konfiguracji (np. "ssh_config"). System plików FAT potrafi pokazać
// tylko skrócone aliasy 8.3, więc akceptujemy też warianty z '~'.
func candidateScore(stem, lowerName string) int {
	head := stem
	tail := stem
	if i := strings.IndexByte(stem, '_'); i > 0 {
		head = stem[:i]
		tail = stem[i+1:]
	}

	switch {
	case lowerName == stem:
		return 100
	case strings.HasPrefix(lowerName, stem):
		return 95
	}

	for _, p := range []string{head + "_co~", head + "_c~", head + "co~", head + "c~"} {
		if strings.HasPrefix(lowerName, p) {
			return 90
		}
	}

	switch lowerName {
	case head + "cfg", head + ".cfg", head + "_cfg":
		return 80
	}
	if strings.HasPrefix(lowerName, head+"cfg") || strings.HasPrefix(lowerName, head+"_cfg") {
		return 70
	}
	if tail != head && strings.Contains(lowerName, head) && strings.Contains(lowerName, tail) {
		return 60
	}
	if strings.HasPrefix(lowerName, head) && strings.Contains(lowerName, "~") {
		return 55
	}
	return 0
}

type configCandidate struct {
	path      string
	lowerName string
	score     int
	tilde     int
	mtime     int64
	dirRank   int
}

// ResolveConfigFile wybiera najlepszego kandydata na plik konfiguracyjny
// o podanej nazwie bazowej. Remisy rozstrzyga czas modyfikacji, potem
// indeks '~', ranga katalogu i na końcu nazwa.
func (s *Store) ResolveConfigFile(stem string) (string, error) {
	var candidates []configCandidate

	scanDir := func(dirPath string, dirRank int) {
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			return
		}
		for _, entry := range entries {
			name := entry.Name()
			lower := strings.ToLower(name)
			if strings.HasPrefix(lower, "._") {
				continue
			}
			score := candidateScore(stem, lower)
			if score <= 0 {
				continue
			}
			path := filepath.Join(dirPath, name)
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			candidates = append(candidates, configCandidate{
				path:      path,
				lowerName: lower,
				score:     score,
				tilde:     TildeIndex(name),
				mtime:     info.ModTime().Unix(),
				dirRank:   dirRank,
			})
		}
	}

	for _, dir := range s.KeysDirs() {
		scanDir(dir, 1)
	}
	for _, root := range s.roots {
		scanDir(root, 0)
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("no %s candidate under %s", stem, strings.Join(s.roots, ", "))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.mtime != b.mtime {
			return a.mtime > b.mtime
		}
		if a.tilde != b.tilde {
			return a.tilde > b.tilde
		}
		if a.dirRank != b.dirRank {
			return a.dirRank > b.dirRank
		}
		return a.lowerName > b.lowerName
	})

	return candidates[0].path, nil
}

// ConfigCandidates zwraca pełną listę ścieżek do spróbowania: najpierw
// ścieżki kanoniczne, potem najlepszy kandydat, na końcu skan katalogów
// po fragmencie nazwy. Duplikaty są pomijane z zachowaniem kolejności.
func (s *Store) ConfigCandidates(stem string) []string {
	var paths []string
	seen := make(map[string]bool)
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		paths = append(paths, path)
	}

	for _, dir := range s.KeysDirs() {
		add(filepath.Join(dir, stem))
	}
	for _, root := range s.roots {
		add(filepath.Join(root, stem))
	}
	if resolved, err := s.ResolveConfigFile(stem); err == nil {
		add(resolved)
	}

	head := stem
	if i := strings.IndexByte(stem, '_'); i > 0 {
		head = stem[:i]
	}
	scanDir := func(dirPath string) {
		entries, err := os.ReadDir(dirPath)
		if err != nil {
			return
		}
		for _, entry := range entries {
			lower := strings.ToLower(entry.Name())
			if strings.HasPrefix(lower, "._") || !strings.Contains(lower, head) {
				continue
			}
			path := filepath.Join(dirPath, entry.Name())
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				add(path)
			}
		}
	}
	for _, dir := range s.KeysDirs() {
		scanDir(dir)
	}
	for _, root := range s.roots {
		scanDir(root)
	}

	return paths
}
