package sideload

import (
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pocketssh/internal/apperr"
	"pocketssh/internal/storage"
)

func beginLine(name string, payload []byte) string {
	return fmt.Sprintf("BEGIN %s %d %08x", name, len(payload), crc32.ChecksumIEEE(payload))
}

func TestReceiveWholeFile(t *testing.T) {
	root := t.TempDir()
	payload := []byte("config contents\nsecond line\n")

	var percents []int
	r := NewReceiver(storage.NewStore(root), func(p int, _, _ int64) {
		percents = append(percents, p)
	})

	script := strings.Join([]string{
		beginLine("notes.txt", payload),
		"DATA " + hex.EncodeToString(payload[:10]),
		"DATA " + hex.EncodeToString(payload[10:]),
		"END",
	}, "\n")

	if err := r.Pump(strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("file contents %q, want %q", got, payload)
	}

	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Errorf("progress callbacks %v, want terminal 100", percents)
	}
}

func TestProgressEveryTenPercent(t *testing.T) {
	root := t.TempDir()
	payload := make([]byte, 1000)

	var percents []int
	r := NewReceiver(storage.NewStore(root), func(p int, _, _ int64) {
		percents = append(percents, p)
	})

	if _, err := r.HandleLine(beginLine("big.bin", payload)); err != nil {
		t.Fatal(err)
	}
	for off := 0; off < len(payload); off += 50 {
		if _, err := r.HandleLine("DATA " + hex.EncodeToString(payload[off:off+50])); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := r.HandleLine("END"); err != nil {
		t.Fatal(err)
	}

	for i := 1; i < len(percents); i++ {
		if step := percents[i] - percents[i-1]; step != 0 && step < progressStep {
			t.Fatalf("progress steps %v, want gaps of at least %d", percents, progressStep)
		}
	}
}

func TestCRCMismatchRemovesFile(t *testing.T) {
	root := t.TempDir()
	r := NewReceiver(storage.NewStore(root), nil)

	script := strings.Join([]string{
		"BEGIN bad.bin 4 deadbeef",
		"DATA " + hex.EncodeToString([]byte("data")),
		"END",
	}, "\n")

	err := r.Pump(strings.NewReader(script))
	if !apperr.IsType(err, apperr.ProtocolError) {
		t.Fatalf("err = %v, want protocol error", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "bad.bin")); !os.IsNotExist(statErr) {
		t.Error("file with bad crc must be removed")
	}
}

func TestSizeMismatchRemovesFile(t *testing.T) {
	root := t.TempDir()
	r := NewReceiver(storage.NewStore(root), nil)
	payload := []byte("short")

	script := strings.Join([]string{
		fmt.Sprintf("BEGIN trunc.bin 99 %08x", crc32.ChecksumIEEE(payload)),
		"DATA " + hex.EncodeToString(payload),
		"END",
	}, "\n")

	if err := r.Pump(strings.NewReader(script)); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, statErr := os.Stat(filepath.Join(root, "trunc.bin")); !os.IsNotExist(statErr) {
		t.Error("truncated file must be removed")
	}
}

func TestAbortDiscards(t *testing.T) {
	root := t.TempDir()
	r := NewReceiver(storage.NewStore(root), nil)

	script := strings.Join([]string{
		"BEGIN part.bin 100 00000000",
		"DATA " + hex.EncodeToString([]byte("partial")),
		"ABORT",
	}, "\n")

	if err := r.Pump(strings.NewReader(script)); err != nil {
		t.Fatalf("ABORT is a clean stop, got %v", err)
	}
	if r.Active() {
		t.Error("receiver must be idle after ABORT")
	}
	if _, statErr := os.Stat(filepath.Join(root, "part.bin")); !os.IsNotExist(statErr) {
		t.Error("partial file must be removed")
	}
}

func TestBeginWithPresetTarget(t *testing.T) {
	root := t.TempDir()
	payload := []byte("preset target payload")
	r := NewReceiver(storage.NewStore(root), nil)
	r.SetTarget("dump.bin")

	script := strings.Join([]string{
		fmt.Sprintf("BEGIN %d %08x", len(payload), crc32.ChecksumIEEE(payload)),
		"DATA " + hex.EncodeToString(payload),
		"END",
	}, "\n")

	if err := r.Pump(strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(root, "dump.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("file contents %q, want %q", got, payload)
	}
}

func TestBeginWithoutTarget(t *testing.T) {
	r := NewReceiver(storage.NewStore(t.TempDir()), nil)
	if _, err := r.HandleLine("BEGIN 4 deadbeef"); !apperr.IsType(err, apperr.ProtocolError) {
		t.Errorf("err = %v, want protocol error when no target name is known", err)
	}
}

func TestDataBeforeBegin(t *testing.T) {
	r := NewReceiver(storage.NewStore(t.TempDir()), nil)
	if _, err := r.HandleLine("DATA 00"); !apperr.IsType(err, apperr.ProtocolError) {
		t.Errorf("err = %v, want protocol error", err)
	}
}

func TestNameIsSanitized(t *testing.T) {
	root := t.TempDir()
	r := NewReceiver(storage.NewStore(root), nil)
	payload := []byte("x")

	script := strings.Join([]string{
		beginLine("../../escape.txt", payload),
		"DATA " + hex.EncodeToString(payload),
		"END",
	}, "\n")

	if err := r.Pump(strings.NewReader(script)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Error("file must land under the storage root with its base name")
	}
}
