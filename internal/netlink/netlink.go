// internal/netlink/netlink.go

package netlink

import (
	"context"
	"net"
	"sync"
	"time"

	"pocketssh/internal/apperr"
	"pocketssh/internal/models"
)

const (
	joinAttempts = 5
	joinDelay    = time.Second
)

// Link to interfejs warstwy sieciowej widziany przez kontroler.
// Implementacja systemowa tylko obserwuje łącze; dołączenie do sieci
// ogranicza się do odczekania, aż łącze będzie zdatne do użytku.
type Link interface {
	Up() bool
	SSID() string
	Join(ctx context.Context, profile models.WifiProfile) error
	Leave() error
}

// SystemLink sprawdza interfejsy systemu operacyjnego
type SystemLink struct {
	mu    sync.Mutex
	ssid  string
	probe func() bool
}

func NewSystemLink() *SystemLink {
	return &SystemLink{probe: hasUsableInterface}
}

func (l *SystemLink) Up() bool {
	return l.probe()
}

func (l *SystemLink) SSID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ssid
}

// Join czeka na zdatne łącze, najwyżej joinAttempts prób
func (l *SystemLink) Join(ctx context.Context, profile models.WifiProfile) error {
	for attempt := 0; attempt < joinAttempts; attempt++ {
		if l.probe() {
			l.mu.Lock()
			if profile.Name != "" {
				l.ssid = profile.Name
			} else {
				l.ssid = profile.SSID
			}
			l.mu.Unlock()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(joinDelay):
		}
	}
	return apperr.New(apperr.NetworkUnavailable, "network did not come up", nil)
}

func (l *SystemLink) Leave() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ssid = ""
	return nil
}

// hasUsableInterface szuka aktywnego interfejsu z adresem,
// z pominięciem pętli zwrotnej
func hasUsableInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}
