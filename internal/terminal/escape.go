// internal/terminal/escape.go

package terminal

const (
	statePlain = iota
	stateEsc
	stateCSI
	stateOSC
	stateOSCEsc
	stateCharset
)

// EscapeFilter usuwa sekwencje sterujące ze strumienia bajtów.
// Filtr trzyma stan między wywołaniami, więc sekwencja rozcięta na
// granicy porcji nadal znika w całości.
type EscapeFilter struct {
	state int
}

// Filter dopisuje oczyszczone bajty src do dst i zwraca wynik.
// Usuwane są: sekwencje CSI (do bajtu końcowego), sekwencje OSC
// (do BEL lub ST), dwubajtowe desygnatory zestawów znaków oraz
// pozostałe dwubajtowe sekwencje ESC. Znak CR jest pomijany.
func (f *EscapeFilter) Filter(dst, src []byte) []byte {
	for _, c := range src {
		switch f.state {
		case statePlain:
			switch {
			case c == 0x1b:
				f.state = stateEsc
			case c == '\r':
				// CRLF redukuje się do LF; goły CR znika
			case c == '\n' || c == '\t' || c >= 0x20:
				dst = append(dst, c)
			}
		case stateEsc:
			switch c {
			case '[':
				f.state = stateCSI
			case ']':
				f.state = stateOSC
			case '(', ')', '#', '%':
				f.state = stateCharset
			default:
				f.state = statePlain
			}
		case stateCSI:
			// parametry i bajty pośrednie aż do bajtu końcowego
			if c >= 0x40 && c <= 0x7e {
				f.state = statePlain
			}
		case stateOSC:
			if c == 0x07 {
				f.state = statePlain
			} else if c == 0x1b {
				f.state = stateOSCEsc
			}
		case stateOSCEsc:
			if c == '\\' {
				f.state = statePlain
			} else {
				f.state = stateOSC
			}
		case stateCharset:
			f.state = statePlain
		}
	}
	return dst
}

// Reset porzuca ewentualną niedokończoną sekwencję
func (f *EscapeFilter) Reset() {
	f.state = statePlain
}

// StripEscapes czyści pojedynczy, kompletny fragment tekstu
func StripEscapes(s string) string {
	var f EscapeFilter
	return string(f.Filter(nil, []byte(s)))
}
