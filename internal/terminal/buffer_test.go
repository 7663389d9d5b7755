package terminal

import (
	"bytes"
	"strings"
	"testing"
)

func TestStripEscapes(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "hello\n", "hello\n"},
		{"color", "\x1b[31mred\x1b[0m\n", "red\n"},
		{"cursor", "\x1b[2J\x1b[Hcleared", "cleared"},
		{"osc bel", "\x1b]0;title\x07prompt$ ", "prompt$ "},
		{"osc st", "\x1b]0;title\x1b\\prompt$ ", "prompt$ "},
		{"charset", "\x1b(B\x1b)0text", "text"},
		{"crlf", "line\r\nnext\rend", "line\nnextend"},
		{"control bytes", "a\x00\x08b", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripEscapes(tt.in); got != tt.want {
				t.Errorf("StripEscapes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilterSequenceSplitAcrossChunks(t *testing.T) {
	var f EscapeFilter
	out := f.Filter(nil, []byte("a\x1b[3"))
	out = f.Filter(out, []byte("1mred"))
	if string(out) != "ared" {
		t.Errorf("got %q, want %q", out, "ared")
	}
}

func TestFilterUnterminatedSequence(t *testing.T) {
	var f EscapeFilter
	out := f.Filter(nil, []byte("ok\x1b[12;"))
	if string(out) != "ok" {
		t.Errorf("got %q, want %q (sequence tail swallowed)", out, "ok")
	}
	f.Reset()
	out = f.Filter(nil, []byte("34mback"))
	if string(out) != "34mback" {
		t.Errorf("after Reset got %q, want literal text", out)
	}
}

func TestIngestReportsTrim(t *testing.T) {
	b := NewBuffer()
	if b.Ingest([]byte("hello")) {
		t.Error("small ingest must not report a trim")
	}
	if !b.Ingest(bytes.Repeat([]byte{'x'}, IngressMax)) {
		t.Error("overflowing ingest must report the trim")
	}
}

func TestIngestCapsAtMax(t *testing.T) {
	b := NewBuffer()
	b.Ingest(bytes.Repeat([]byte{'x'}, IngressMax))
	b.Ingest([]byte("tail"))

	if got := b.Pending(); got != IngressKeep {
		t.Errorf("Pending = %d, want %d after overflow", got, IngressKeep)
	}

	var out strings.Builder
	for b.Pending() > 0 {
		b.FlushPending(func(s string) { out.WriteString(s) })
	}
	if !strings.HasSuffix(out.String(), "tail") {
		t.Error("newest bytes must survive the overflow trim")
	}
}

func TestFlushPendingChunksAndScrollback(t *testing.T) {
	b := NewBuffer()
	b.Ingest([]byte("\x1b[32m$ \x1b[0mls\ntotal 4\n"))

	var emitted strings.Builder
	if !b.FlushPending(func(s string) { emitted.WriteString(s) }) {
		t.Fatal("FlushPending returned false with the display path free")
	}

	want := "$ ls\ntotal 4\n"
	if emitted.String() != want {
		t.Errorf("emitted %q, want %q", emitted.String(), want)
	}
	if b.Scrollback() != want {
		t.Errorf("scrollback %q, want %q", b.Scrollback(), want)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d after full flush", b.Pending())
	}
}

func TestFlushPendingSkipsWhenDisplayBusy(t *testing.T) {
	b := NewBuffer()
	b.Ingest([]byte("data"))

	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if b.FlushPending(nil) {
		t.Error("FlushPending must report false while the display path is held")
	}
	if b.Pending() != 4 {
		t.Errorf("Pending = %d, bytes must stay queued", b.Pending())
	}
}

func TestScrollbackTrimsOldest(t *testing.T) {
	b := NewBuffer()
	line := strings.Repeat("y", 63) + "\n"
	for i := 0; i < (ScrollbackMax/len(line))*3; i++ {
		b.AppendLine(line[:len(line)-1])
	}

	got := b.Scrollback()
	if len(got) > ScrollbackMax {
		t.Errorf("scrollback length %d exceeds cap %d", len(got), ScrollbackMax)
	}
	if !strings.HasSuffix(got, line) {
		t.Error("newest line must survive trimming")
	}
}

func TestFreeScrollback(t *testing.T) {
	b := NewBuffer()
	b.Ingest([]byte("pending"))
	b.AppendLine("history")

	b.FreeScrollback()
	if b.Pending() != 0 || b.Scrollback() != "" {
		t.Error("FreeScrollback must drop both buffers")
	}
}
