package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCandidateScore(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"ssh_config", 100},
		{"ssh_config.txt", 95},
		{"ssh_co~1", 90},
		{"ssh_c~1", 90},
		{"sshco~1", 90},
		{"sshc~2.txt", 90},
		{"sshcfg", 80},
		{"ssh.cfg", 80},
		{"ssh_cfg", 80},
		{"sshcfg.bak", 70},
		{"my_ssh_config_backup", 60},
		{"ssh~1", 55},
		{"unrelated.txt", 0},
		{"wifi_config", 0},
	}
	for _, tt := range tests {
		if got := candidateScore("ssh_config", tt.name); got != tt.want {
			t.Errorf("candidateScore(ssh_config, %q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestTildeIndex(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"ssh_co~1", 1},
		{"ssh_co~12.txt", 12},
		{"no_tilde", -1},
		{"trailing~", -1},
		{"~3abc", 3},
	}
	for _, tt := range tests {
		if got := TildeIndex(tt.name); got != tt.want {
			t.Errorf("TildeIndex(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestIsMetadataFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"._ssh_config", true},
		{"_SSH_C~1", true},
		{"ssh_config", false},
		{"_underscore_plain", false},
	}
	for _, tt := range tests {
		if got := IsMetadataFile(tt.name); got != tt.want {
			t.Errorf("IsMetadataFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func writeAt(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("Host x\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveConfigFilePrefersScore(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeAt(t, root, "sshcfg", now)
	want := writeAt(t, root, "ssh_config", now.Add(-time.Hour))

	got, err := NewStore(root).ResolveConfigFile("ssh_config")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ResolveConfigFile = %q, want exact name despite older mtime", got)
	}
}

func TestResolveConfigFileTieBreakMtime(t *testing.T) {
	root := t.TempDir()
	now := time.Now().Truncate(time.Second)
	writeAt(t, root, "ssh_co~1", now.Add(-time.Hour))
	want := writeAt(t, root, "ssh_co~2", now)

	got, err := NewStore(root).ResolveConfigFile("ssh_config")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ResolveConfigFile = %q, want the newer shortened alias %q", got, want)
	}
}

func TestResolveConfigFileKeysDirOutranksRoot(t *testing.T) {
	root := t.TempDir()
	keysDir := filepath.Join(root, KeysDirName)
	if err := os.MkdirAll(keysDir, 0o755); err != nil {
		t.Fatal(err)
	}
	now := time.Now().Truncate(time.Second)
	writeAt(t, root, "ssh_config", now)
	want := writeAt(t, keysDir, "ssh_config", now)

	got, err := NewStore(root).ResolveConfigFile("ssh_config")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ResolveConfigFile = %q, want keys dir copy %q on full tie", got, want)
	}
}

func TestResolveConfigFileNoCandidate(t *testing.T) {
	if _, err := NewStore(t.TempDir()).ResolveConfigFile("ssh_config"); err == nil {
		t.Fatal("expected error with no candidate files")
	}
}

func TestConfigCandidatesOrder(t *testing.T) {
	root := t.TempDir()
	keysDir := filepath.Join(root, KeysDirName)
	if err := os.MkdirAll(keysDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeAt(t, root, "ssh_backup", time.Now())

	store := NewStore(root)
	paths := store.ConfigCandidates("ssh_config")

	if len(paths) < 3 {
		t.Fatalf("ConfigCandidates = %v, want canonical paths plus scan hits", paths)
	}
	if paths[0] != filepath.Join(keysDir, "ssh_config") {
		t.Errorf("first candidate %q, want canonical keys dir path", paths[0])
	}
	if paths[1] != filepath.Join(root, "ssh_config") {
		t.Errorf("second candidate %q, want canonical root path", paths[1])
	}

	seen := map[string]int{}
	foundScan := false
	for _, p := range paths {
		seen[p]++
		if p == filepath.Join(root, "ssh_backup") {
			foundScan = true
		}
	}
	for p, n := range seen {
		if n > 1 {
			t.Errorf("duplicate candidate %q", p)
		}
	}
	if !foundScan {
		t.Errorf("fragment scan must pick up ssh_backup, got %v", paths)
	}
}

func TestDefaultRootsFromEnv(t *testing.T) {
	t.Setenv(RootsEnv, "/mnt/card:/tmp/alt")
	roots := DefaultRoots()
	if len(roots) != 2 || roots[0] != "/mnt/card" || roots[1] != "/tmp/alt" {
		t.Errorf("DefaultRoots = %v", roots)
	}
}
