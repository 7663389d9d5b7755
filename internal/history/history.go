// internal/history/history.go

package history

import (
	"time"
)

const (
	// MaxEntries ogranicza historię; najstarsze wpisy wypadają
	MaxEntries = 100

	// SaveDebounce to minimalny odstęp między zapisami na nośnik
	SaveDebounce = 5 * time.Second
)

// History trzyma wysłane komendy od najstarszej do najnowszej.
// Kursor -1 oznacza edycję bieżącej linii, wartości 0..len-1 wskazują
// wpis przeglądany strzałkami.
type History struct {
	entries  []string
	cursor   int
	dirty    bool
	lastSave time.Time
}

func New() *History {
	return &History{cursor: -1}
}

// Restore podmienia zawartość na wpisy wczytane z nośnika
func (h *History) Restore(entries []string) {
	if len(entries) > MaxEntries {
		entries = entries[len(entries)-MaxEntries:]
	}
	h.entries = append(h.entries[:0], entries...)
	h.cursor = -1
	h.dirty = false
}

// Add zapisuje wysłaną komendę. Ponowne wysłanie istniejącej komendy
// przenosi ją na koniec zamiast dublować.
func (h *History) Add(command string) {
	if command == "" {
		return
	}

	for i, entry := range h.entries {
		if entry == command {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			break
		}
	}

	h.entries = append(h.entries, command)
	if len(h.entries) > MaxEntries {
		h.entries = h.entries[1:]
	}

	h.cursor = -1
	h.markDirty()
}

// Older cofa kursor w stronę starszych wpisów
func (h *History) Older() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	switch {
	case h.cursor == -1:
		h.cursor = len(h.entries) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.entries[h.cursor], true
}

// Newer przesuwa kursor w stronę nowszych wpisów; zejście poniżej
// najnowszego wraca do bieżącej linii
func (h *History) Newer() (string, bool) {
	if h.cursor == -1 {
		return "", false
	}
	h.cursor++
	if h.cursor >= len(h.entries) {
		h.cursor = -1
		return "", false
	}
	return h.entries[h.cursor], true
}

// DeleteCurrent usuwa przeglądany wpis i zwraca następny do pokazania
func (h *History) DeleteCurrent() (string, bool) {
	if h.cursor < 0 || h.cursor >= len(h.entries) {
		return "", false
	}

	h.entries = append(h.entries[:h.cursor], h.entries[h.cursor+1:]...)
	h.markDirty()

	if len(h.entries) == 0 {
		h.cursor = -1
		return "", false
	}
	if h.cursor >= len(h.entries) {
		h.cursor = len(h.entries) - 1
	}
	return h.entries[h.cursor], true
}

// ResetCursor wraca do edycji bieżącej linii
func (h *History) ResetCursor() {
	h.cursor = -1
}

func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) markDirty() {
	h.dirty = true
}

// Dirty mówi, czy są niezapisane zmiany
func (h *History) Dirty() bool {
	return h.dirty
}

// NeedsSave ogranicza częstość zapisu: brudna historia trafia na
// nośnik najwyżej raz na okres debounce, także przy ciągłym ruchu
func (h *History) NeedsSave(now time.Time) bool {
	return h.dirty && now.Sub(h.lastSave) >= SaveDebounce
}

// MarkSaved kasuje flagę po udanym zapisie
func (h *History) MarkSaved() {
	h.dirty = false
	h.lastSave = time.Now()
}
