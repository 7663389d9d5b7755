// internal/terminal/buffer.go

package terminal

import (
	"bytes"
	"sync"
	"time"
)

const (
	// Bufor wejściowy: po przekroczeniu maksimum zostaje ogon
	IngressMax  = 16384
	IngressKeep = 12288

	// Przewijana historia ekranu
	ScrollbackMax = 12288
	AppendChunk   = 1024

	// Opróżnianie na ekran
	FlushInterval = 250 * time.Millisecond
	FlushChunk    = 256
)

// Buffer zbiera surowe bajty z kanału sesji i utrzymuje oczyszczoną
// historię. Goroutyna czytająca woła tylko Ingest; opróżnianie na
// ekran idzie przez FlushPending z pętli zdarzeń.
type Buffer struct {
	mu         sync.Mutex
	ingress    []byte
	scrollback []byte
	filter     EscapeFilter
	lastIngest time.Time

	// flushMu chroni tor wyświetlania; zajęty renderer pomija turę
	flushMu sync.Mutex
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Ingest dopisuje surowe bajty i mówi, czy przepełnienie przycięło
// bufor. Po przekroczeniu maksimum najstarsze bajty są odrzucane do
// progu zatrzymania.
func (b *Buffer) Ingest(data []byte) (trimmed bool) {
	if len(data) == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ingress = append(b.ingress, data...)
	if len(b.ingress) > IngressMax {
		drop := len(b.ingress) - IngressKeep
		copy(b.ingress, b.ingress[drop:])
		b.ingress = b.ingress[:IngressKeep]
		trimmed = true
	}
	b.lastIngest = time.Now()
	return trimmed
}

// Pending zwraca liczbę bajtów czekających na opróżnienie
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ingress)
}

// LastIngest zwraca czas ostatniego dopisania
func (b *Buffer) LastIngest() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastIngest
}

// takeChunk zdejmuje z przodu bufora najwyżej FlushChunk bajtów
func (b *Buffer) takeChunk() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.ingress) == 0 {
		return nil
	}
	n := len(b.ingress)
	if n > FlushChunk {
		n = FlushChunk
	}
	chunk := make([]byte, n)
	copy(chunk, b.ingress)
	copy(b.ingress, b.ingress[n:])
	b.ingress = b.ingress[:len(b.ingress)-n]
	return chunk
}

// appendScrollback dopisuje oczyszczony tekst do historii;
// pojedyncze dopisanie jest ścinane do ogona AppendChunk, a historia
// do ScrollbackMax, najchętniej na granicy linii
func (b *Buffer) appendScrollback(text []byte) {
	if len(text) == 0 {
		return
	}
	if len(text) > AppendChunk {
		text = text[len(text)-AppendChunk:]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.scrollback = append(b.scrollback, text...)
	if len(b.scrollback) > ScrollbackMax {
		cut := len(b.scrollback) - ScrollbackMax
		if nl := bytes.IndexByte(b.scrollback[cut:], '\n'); nl >= 0 && nl < 256 {
			cut += nl + 1
		}
		copy(b.scrollback, b.scrollback[cut:])
		b.scrollback = b.scrollback[:len(b.scrollback)-cut]
	}
}

// FlushPending przepuszcza oczekujące bajty przez filtr sekwencji,
// dopisuje wynik do historii i przekazuje go do emit porcjami.
// Przy zajętym torze wyświetlania wraca od razu z false.
func (b *Buffer) FlushPending(emit func(string)) bool {
	if !b.flushMu.TryLock() {
		return false
	}
	defer b.flushMu.Unlock()

	for {
		chunk := b.takeChunk()
		if chunk == nil {
			return true
		}
		clean := b.filter.Filter(nil, chunk)
		if len(clean) == 0 {
			continue
		}
		b.appendScrollback(clean)
		if emit != nil {
			emit(string(clean))
		}
	}
}

// AppendLine dopisuje linię lokalną (komunikat, transkrypt komendy)
// z pominięciem filtra
func (b *Buffer) AppendLine(line string) {
	b.appendScrollback(append([]byte(line), '\n'))
}

// Scrollback zwraca kopię historii jako tekst
func (b *Buffer) Scrollback() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.scrollback)
}

// FreeScrollback zwalnia historię i bufor wejściowy; używane przy
// odzyskiwaniu pamięci przed ponowną próbą połączenia
func (b *Buffer) FreeScrollback() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollback = nil
	b.ingress = nil
	b.filter.Reset()
}

// Clear czyści widoczną historię, zostawiając bufor wejściowy
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrollback = b.scrollback[:0]
}
