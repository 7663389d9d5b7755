package keys

import (
	"os"
	"path/filepath"
	"testing"

	"pocketssh/internal/models"
	"pocketssh/internal/storage"
)

func registryWith(names ...string) *Registry {
	r := &Registry{}
	for _, name := range names {
		r.keys = append(r.keys, models.NewKey(name, []byte("key material")))
	}
	return r
}

func TestMatchExactName(t *testing.T) {
	r := registryWith("deploy.pem", "backup.pem")

	key, ok := r.Match("~/.ssh/Deploy.pem")
	if !ok || key.Name != "deploy.pem" {
		t.Fatalf("Match = %v %v, want deploy.pem", key.Name, ok)
	}
}

func TestMatchStemIgnoresPunctuation(t *testing.T) {
	r := registryWith("prod-web.pem", "backup.pem")

	key, ok := r.Match("prod_web")
	if !ok || key.Name != "prod-web.pem" {
		t.Fatalf("Match = %v %v, want prod-web.pem", key.Name, ok)
	}
}

func TestMatchPrefixEitherDirection(t *testing.T) {
	r := registryWith("deploy-key-2024.pem", "other.pem")

	key, ok := r.Match("deploy")
	if !ok || key.Name != "deploy-key-2024.pem" {
		t.Fatalf("short query: Match = %v %v", key.Name, ok)
	}

	r = registryWith("dep.pem", "other.pem")
	key, ok = r.Match("deploy-key-2024")
	if !ok || key.Name != "dep.pem" {
		t.Fatalf("short key: Match = %v %v", key.Name, ok)
	}
}

func TestMatchShortenedName(t *testing.T) {
	r := registryWith("deploy~1.pem", "other.pem")

	key, ok := r.Match("deploymentkey")
	if !ok || key.Name != "deploy~1.pem" {
		t.Fatalf("Match = %v %v, want deploy~1.pem", key.Name, ok)
	}
}

func TestMatchAmbiguousIsNoMatch(t *testing.T) {
	r := registryWith("deploy-a.pem", "deploy-b.pem")

	if key, ok := r.Match("deploy"); ok {
		t.Fatalf("ambiguous prefix should not match, got %v", key.Name)
	}
}

func TestMatchSoleCandidateFallback(t *testing.T) {
	r := registryWith("only.pem")

	key, ok := r.Match("completely-unrelated")
	if !ok || key.Name != "only.pem" {
		t.Fatalf("Match = %v %v, want only.pem fallback", key.Name, ok)
	}

	r = registryWith("a.pem", "b.pem")
	if _, ok := r.Match("completely-unrelated"); ok {
		t.Fatal("fallback must not apply with more than one key loaded")
	}
}

func TestLoadSkipsMetadataFiles(t *testing.T) {
	root := t.TempDir()
	keysDir := filepath.Join(root, storage.KeysDirName)
	if err := os.MkdirAll(keysDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile := func(dir, name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(keysDir, "deploy.pem", "material")
	writeFile(keysDir, "._deploy.pem", "junk")
	writeFile(keysDir, "notes.txt", "not a key")
	writeFile(root, "spare.pem", "material")

	r := NewRegistry(storage.NewStore(root))
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}

	if r.Len() != 2 {
		t.Fatalf("loaded %d keys, want 2: %+v", r.Len(), r.Keys())
	}
	if _, ok := r.Get("deploy.pem"); !ok {
		t.Error("deploy.pem not loaded")
	}
	if _, ok := r.Get("spare.pem"); !ok {
		t.Error("spare.pem from storage root not loaded")
	}
	if _, ok := r.Get("._deploy.pem"); ok {
		t.Error("metadata file must not be loaded")
	}
}

func TestResolveOnDiskDirectHit(t *testing.T) {
	root := t.TempDir()
	keysDir := filepath.Join(root, storage.KeysDirName)
	if err := os.MkdirAll(keysDir, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(keysDir, "deploy.pem")
	if err := os.WriteFile(want, []byte("material"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(storage.NewStore(root))

	got, err := r.ResolveOnDisk("~/.ssh/deploy.pem")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ResolveOnDisk = %q, want %q", got, want)
	}

	got, err = r.ResolveOnDisk("deploy")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("bare stem: ResolveOnDisk = %q, want %q", got, want)
	}
}

func TestResolveOnDiskMissing(t *testing.T) {
	r := NewRegistry(storage.NewStore(t.TempDir()))
	if _, err := r.ResolveOnDisk("ghost"); err == nil {
		t.Fatal("expected error for missing key file")
	}
}
