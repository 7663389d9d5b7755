package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"pocketssh/internal/apperr"
	"pocketssh/internal/config"
	"pocketssh/internal/models"
	"pocketssh/internal/ssh"
	"pocketssh/internal/storage"
	"pocketssh/internal/ui/messages"
)

// stubLink udaje warstwę sieciową o sterowalnym stanie łącza
type stubLink struct {
	up     bool
	ssid   string
	joined []string
}

func (l *stubLink) Up() bool     { return l.up }
func (l *stubLink) SSID() string { return l.ssid }

func (l *stubLink) Join(ctx context.Context, p models.WifiProfile) error {
	l.joined = append(l.joined, p.SSID)
	l.up = true
	l.ssid = p.SSID
	return nil
}

func (l *stubLink) Leave() error {
	l.up = false
	l.ssid = ""
	return nil
}

func testController(t *testing.T, link *stubLink) (*Controller, string) {
	t.Helper()
	root := t.TempDir()
	c, err := New(storage.NewStore(root), link)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, root
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in       string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"root@10.0.0.5", "root", "10.0.0.5", config.DefaultPort, false},
		{"deploy@web.example.com:2222", "deploy", "web.example.com", 2222, false},
		{"root@[::1]:22", "root", "::1", 22, false},
		{"noatsign", "", "", 0, true},
		{"@host", "", "", 0, true},
		{"user@", "", "", 0, true},
		{"user@host:0", "", "", 0, true},
		{"user@host:99999", "", "", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTarget(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTarget(%q) expected error, got %+v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTarget(%q) error: %v", tt.in, err)
			continue
		}
		if got.User != tt.wantUser || got.HostName != tt.wantHost || got.Port != tt.wantPort {
			t.Errorf("parseTarget(%q) = %s@%s:%d, want %s@%s:%d",
				tt.in, got.User, got.HostName, got.Port, tt.wantUser, tt.wantHost, tt.wantPort)
		}
	}
}

func TestTryIdentitiesWalksAllBeforeFailing(t *testing.T) {
	c, root := testController(t, &stubLink{up: true})
	for _, name := range []string{"keya.pem", "keyb.pem"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("key material"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	c.registry.Load()

	host := models.ResolvedHost{
		Alias: "web", HostName: "web", User: "admin", Port: 22,
		IdentityFiles: []string{"keya.pem", "ghost.pem", "keyb.pem"},
	}

	var offered []string
	rejected := errors.New("server rejected the key")
	msg := c.tryIdentities(host, func(_ models.ResolvedHost, creds ssh.Credentials) error {
		offered = append(offered, creds.Key.Name)
		return rejected
	})

	if want := []string{"keya.pem", "keyb.pem"}; !reflect.DeepEqual(offered, want) {
		t.Errorf("offered identities = %v, want %v in file order", offered, want)
	}
	fin, ok := msg.(messages.ConnectFinishedMsg)
	if !ok || fin.Err == nil {
		t.Fatalf("result = %#v, want failure only after the last identity", msg)
	}
}

func TestTryIdentitiesStopsOnFirstAccepted(t *testing.T) {
	c, root := testController(t, &stubLink{up: true})
	for _, name := range []string{"keya.pem", "keyb.pem", "keyc.pem"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("key material"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	c.registry.Load()

	host := models.ResolvedHost{
		Alias: "web", HostName: "web", User: "admin", Port: 22,
		IdentityFiles: []string{"keya.pem", "keyb.pem", "keyc.pem"},
	}

	var offered []string
	msg := c.tryIdentities(host, func(_ models.ResolvedHost, creds ssh.Credentials) error {
		offered = append(offered, creds.Key.Name)
		if creds.Key.Name == "keyb.pem" {
			return nil
		}
		return errors.New("server rejected the key")
	})

	if want := []string{"keya.pem", "keyb.pem"}; !reflect.DeepEqual(offered, want) {
		t.Errorf("offered identities = %v, want stop at the accepted key", offered)
	}
	if fin, ok := msg.(messages.ConnectFinishedMsg); !ok || fin.Err != nil {
		t.Fatalf("result = %#v, want clean finish", msg)
	}
}

func TestTryIdentitiesNoneUsable(t *testing.T) {
	c, _ := testController(t, &stubLink{up: true})
	host := models.ResolvedHost{
		Alias: "web", HostName: "web", User: "admin", Port: 22,
		IdentityFiles: []string{"ghost.pem"},
	}

	msg := c.tryIdentities(host, func(models.ResolvedHost, ssh.Credentials) error {
		t.Fatal("attempt must not run without a resolvable key")
		return nil
	})

	fin, ok := msg.(messages.ConnectFinishedMsg)
	if !ok || !apperr.IsType(fin.Err, apperr.IdentityUnavailable) {
		t.Fatalf("result = %#v, want IdentityUnavailable", msg)
	}
}

func TestStartConnectRequiresLink(t *testing.T) {
	c, _ := testController(t, &stubLink{up: false})

	host := models.ResolvedHost{Alias: "web", HostName: "web", User: "admin", Port: 22}
	if cmd := c.startConnect(host, "secret"); cmd != nil || c.connecting {
		t.Fatal("connect must not start with the link down and no assigned network")
	}
	if !strings.Contains(c.buffer.Scrollback(), "No network link") {
		t.Errorf("transcript missing link warning: %q", c.buffer.Scrollback())
	}
}

func TestEnsureLinkJoinsAssignedNetwork(t *testing.T) {
	link := &stubLink{}
	c, root := testController(t, link)

	wifi := "Network lab\nSSID labnet\nPassword secret\n"
	if err := os.WriteFile(filepath.Join(root, config.WifiFileName), []byte(wifi), 0600); err != nil {
		t.Fatal(err)
	}

	host := models.ResolvedHost{Alias: "web", HostName: "web", User: "admin", Port: 22, Network: "lab"}
	if err := c.ensureLink(host); err != nil {
		t.Fatalf("ensureLink: %v", err)
	}
	if want := []string{"labnet"}; !reflect.DeepEqual(link.joined, want) {
		t.Errorf("joined = %v, want %v", link.joined, want)
	}

	if err := c.ensureLink(host); err != nil || len(link.joined) != 1 {
		t.Errorf("a standing link must not rejoin (err %v, joined %v)", err, link.joined)
	}

	link.Leave()
	err := c.ensureLink(models.ResolvedHost{Alias: "bare", HostName: "bare", User: "admin", Port: 22})
	if !apperr.IsType(err, apperr.NetworkUnavailable) {
		t.Errorf("ensureLink without a profile = %v, want NetworkUnavailable", err)
	}
}

func TestProfileLabel(t *testing.T) {
	if got := profileLabel(models.WifiProfile{Name: "office", SSID: "Corp"}); got != "office" {
		t.Errorf("profileLabel = %q, want name", got)
	}
	if got := profileLabel(models.WifiProfile{SSID: "HomeNet"}); got != "HomeNet" {
		t.Errorf("profileLabel = %q, want ssid fallback", got)
	}
}
