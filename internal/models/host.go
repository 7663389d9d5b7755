// internal/models/host.go

package models

// ResolvedHost zawiera parametry połączenia uzyskane z pliku aliasów
type ResolvedHost struct {
	Alias          string
	HostName       string
	User           string
	Port           int
	IdentitiesOnly bool
	IdentityFiles  []string
	StrictHostKey  string
	Network        string
}

// WifiProfile reprezentuje jeden profil sieci z pliku wifi_config
type WifiProfile struct {
	Name           string
	SSID           string
	Password       string
	AutoConnect    bool
	HasAutoConnect bool
	FileOrder      int
}
