// internal/config/config.go

package config

import (
	"strconv"
	"strings"

	"pocketssh/internal/apperr"
	"pocketssh/internal/models"
	"pocketssh/internal/storage"
)

const (
	HostsFileName = "ssh_config"
	WifiFileName  = "wifi_config"

	DefaultPort          = 22
	DefaultStrictHostKey = "ask"
)

// Options to zestaw dyrektyw z jawnymi flagami "ustawione/nieustawione".
// Scalanie bloków nadpisuje tylko pola faktycznie ustawione w pliku.
type Options struct {
	HasHostName bool
	HostName    string

	HasUser bool
	User    string

	HasPort bool
	Port    int

	HasIdentitiesOnly bool
	IdentitiesOnly    bool
	IdentityFiles     []string

	HasConnectTimeout bool
	ConnectTimeout    int

	HasServerAliveInterval bool
	ServerAliveInterval    int

	HasServerAliveCountMax bool
	ServerAliveCountMax    int

	HasStrictHostKey bool
	StrictHostKey    string

	HasNetwork bool
	Network    string

	HasFontSize bool
	FontSizeBig bool
}

// HostBlock grupuje opcje pod listą wzorców (wzorce z '!' to negacje)
type HostBlock struct {
	Patterns []string
	Options  Options
}

// AliasFile to sparsowany plik aliasów hostów
type AliasFile struct {
	Global  Options
	Blocks  []HostBlock
	Aliases []string
}

// Store parsuje pliki konfiguracyjne z nośnika przy każdym wywołaniu.
// Brak cache jest zamierzony: karta bywa edytowana między wyszukaniami.
type Store struct {
	storage *storage.Store
}

func NewStore(st *storage.Store) *Store {
	return &Store{storage: st}
}

// ---- pomocnicze funkcje gramatyki ----

// stripInlineComment ucina '#' poza cudzysłowami
func stripInlineComment(line string) string {
	inQuotes := false
	var quoteChar byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if (c == '"' || c == '\'') && (!inQuotes || c == quoteChar) {
			if inQuotes {
				inQuotes = false
				quoteChar = 0
			} else {
				inQuotes = true
				quoteChar = c
			}
			continue
		}
		if !inQuotes && c == '#' {
			return line[:i]
		}
	}
	return line
}

// trimMatchingQuotes zdejmuje parę cudzysłowów obejmującą całą wartość
func trimMatchingQuotes(value string) string {
	if len(value) >= 2 {
		first := value[0]
		last := value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// splitDirective dzieli linię na klucz i wartość ("Key Value" lub "Key=Value")
func splitDirective(line string) (key, value string, ok bool) {
	if eq := strings.IndexByte(line, '='); eq >= 0 {
		key = strings.TrimSpace(line[:eq])
		value = strings.TrimSpace(line[eq+1:])
		return key, value, key != "" && value != ""
	}
	ws := strings.IndexAny(line, " \t")
	if ws < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:ws])
	value = strings.TrimSpace(line[ws+1:])
	return key, value, key != "" && value != ""
}

// ParseBoolFlag akceptuje yes/true/on/1 oraz no/false/off/0
func ParseBoolFlag(value string) (parsed, ok bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "on", "1":
		return true, true
	case "no", "false", "off", "0":
		return false, true
	}
	return false, false
}

// ParseFontSizeToken akceptuje big/large oraz normal/small
func ParseFontSizeToken(value string) (big, ok bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "big", "large":
		return true, true
	case "normal", "small":
		return false, true
	}
	return false, false
}

// WildcardMatch dopasowuje wzorzec z '*' i '?' bez rozróżniania
// wielkości liter, z klasycznym nawrotem na '*'
func WildcardMatch(pattern, candidate string) bool {
	pat := strings.ToLower(pattern)
	text := strings.ToLower(candidate)

	p, t := 0, 0
	star := -1
	match := 0

	for t < len(text) {
		switch {
		case p < len(pat) && (pat[p] == '?' || pat[p] == text[t]):
			p++
			t++
		case p < len(pat) && pat[p] == '*':
			star = p
			p++
			match = t
		case star >= 0:
			p = star + 1
			match++
			t = match
		default:
			return false
		}
	}

	for p < len(pat) && pat[p] == '*' {
		p++
	}
	return p == len(pat)
}

// blockMatches: wymaga co najmniej jednego pozytywnego dopasowania
// i żadnego dopasowania wzorca negowanego
func blockMatches(block HostBlock, alias string) bool {
	hasPositive := false
	positiveMatch := false

	for _, raw := range block.Patterns {
		if raw == "" {
			continue
		}
		if raw[0] == '!' {
			neg := raw[1:]
			if neg != "" && WildcardMatch(neg, alias) {
				return false
			}
			continue
		}
		hasPositive = true
		if WildcardMatch(raw, alias) {
			positiveMatch = true
		}
	}

	return hasPositive && positiveMatch
}

// applyOption przypisuje pojedynczą dyrektywę; nieznane klucze i
// niepoprawne wartości są po prostu pomijane
func applyOption(directive, rawValue string, target *Options) {
	value := trimMatchingQuotes(strings.TrimSpace(rawValue))

	switch directive {
	case "hostname":
		target.HostName = value
		target.HasHostName = true
	case "user":
		target.User = value
		target.HasUser = true
	case "port":
		if port, err := strconv.Atoi(value); err == nil && port > 0 && port <= 65535 {
			target.Port = port
			target.HasPort = true
		}
	case "identityfile":
		if value != "" {
			target.IdentityFiles = append(target.IdentityFiles, value)
		}
	case "identitiesonly":
		if parsed, ok := ParseBoolFlag(value); ok {
			target.IdentitiesOnly = parsed
			target.HasIdentitiesOnly = true
		}
	case "connecttimeout":
		if v, err := strconv.Atoi(value); err == nil && v >= 0 {
			target.ConnectTimeout = v
			target.HasConnectTimeout = true
		}
	case "serveraliveinterval":
		if v, err := strconv.Atoi(value); err == nil && v >= 0 {
			target.ServerAliveInterval = v
			target.HasServerAliveInterval = true
		}
	case "serveralivecountmax":
		if v, err := strconv.Atoi(value); err == nil && v >= 0 {
			target.ServerAliveCountMax = v
			target.HasServerAliveCountMax = true
		}
	case "stricthostkeychecking":
		target.StrictHostKey = strings.ToLower(value)
		target.HasStrictHostKey = true
	case "network", "pocketnetwork":
		target.Network = value
		target.HasNetwork = true
	case "fontsize":
		if big, ok := ParseFontSizeToken(value); ok {
			target.FontSizeBig = big
			target.HasFontSize = true
		}
	}
}

// merge nakłada pola jawnie ustawione w source na target;
// IdentityFile się kumuluje
func merge(source Options, target *Options) {
	if source.HasHostName {
		target.HostName = source.HostName
		target.HasHostName = true
	}
	if source.HasUser {
		target.User = source.User
		target.HasUser = true
	}
	if source.HasPort {
		target.Port = source.Port
		target.HasPort = true
	}
	if source.HasIdentitiesOnly {
		target.IdentitiesOnly = source.IdentitiesOnly
		target.HasIdentitiesOnly = true
	}
	if len(source.IdentityFiles) > 0 {
		target.IdentityFiles = append(target.IdentityFiles, source.IdentityFiles...)
	}
	if source.HasConnectTimeout {
		target.ConnectTimeout = source.ConnectTimeout
		target.HasConnectTimeout = true
	}
	if source.HasServerAliveInterval {
		target.ServerAliveInterval = source.ServerAliveInterval
		target.HasServerAliveInterval = true
	}
	if source.HasServerAliveCountMax {
		target.ServerAliveCountMax = source.ServerAliveCountMax
		target.HasServerAliveCountMax = true
	}
	if source.HasStrictHostKey {
		target.StrictHostKey = source.StrictHostKey
		target.HasStrictHostKey = true
	}
	if source.HasNetwork {
		target.Network = source.Network
		target.HasNetwork = true
	}
	if source.HasFontSize {
		target.FontSizeBig = source.FontSizeBig
		target.HasFontSize = true
	}
}

// ParseAliasFile parsuje tekst pliku aliasów. Uszkodzone linie są
// pomijane pojedynczo; parsowanie nigdy nie przerywa się w całości.
func ParseAliasFile(text string) *AliasFile {
	parsed := &AliasFile{}
	aliasSeen := make(map[string]bool)
	var activeBlock *HostBlock
	sawHost := false

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(stripInlineComment(rawLine))
		if line == "" {
			continue
		}

		key, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		directive := strings.ToLower(key)
		if directive == "host" {
			patterns := strings.Fields(value)
			if len(patterns) == 0 {
				continue
			}

			sawHost = true
			parsed.Blocks = append(parsed.Blocks, HostBlock{Patterns: patterns})
			activeBlock = &parsed.Blocks[len(parsed.Blocks)-1]

			// Jawne aliasy (bez wzorców i negacji) trafiają na listę hosts
			for _, pattern := range patterns {
				if pattern == "" || pattern[0] == '!' {
					continue
				}
				if strings.ContainsAny(pattern, "*?") {
					continue
				}
				if !aliasSeen[pattern] {
					aliasSeen[pattern] = true
					parsed.Aliases = append(parsed.Aliases, pattern)
				}
			}
			continue
		}

		target := &parsed.Global
		if sawHost && activeBlock != nil {
			target = &activeBlock.Options
		}
		applyOption(directive, value, target)
	}

	return parsed
}

// ResolveIn scala wszystkie pasujące bloki (w kolejności pliku) na
// opcjach globalnych; późniejsze bloki nadpisują wcześniejsze per pole
func ResolveIn(file *AliasFile, alias string) (models.ResolvedHost, bool) {
	var effective Options
	merge(file.Global, &effective)

	matched := false
	for _, block := range file.Blocks {
		if blockMatches(block, alias) {
			merge(block.Options, &effective)
			matched = true
		}
	}

	if !matched {
		return models.ResolvedHost{}, false
	}

	resolved := models.ResolvedHost{
		Alias:          alias,
		HostName:       alias,
		Port:           DefaultPort,
		StrictHostKey:  DefaultStrictHostKey,
		IdentitiesOnly: effective.IdentitiesOnly,
		IdentityFiles:  effective.IdentityFiles,
		Network:        effective.Network,
	}
	if effective.HasHostName {
		resolved.HostName = effective.HostName
	}
	if effective.HasUser {
		resolved.User = effective.User
	}
	if effective.HasPort {
		resolved.Port = effective.Port
	}
	if effective.HasStrictHostKey {
		resolved.StrictHostKey = effective.StrictHostKey
	}
	return resolved, true
}

// LoadAliasFile próbuje kolejnych kandydatów ścieżek; pierwszy plik
// z blokami Host wygrywa, a pierwszy otwarty jest zapasem
func (s *Store) LoadAliasFile() (*AliasFile, error) {
	var first *AliasFile
	openedAny := false

	for _, path := range s.storage.ConfigCandidates(HostsFileName) {
		data, err := s.storage.ReadFile(path)
		if err != nil {
			continue
		}
		openedAny = true
		parsed := ParseAliasFile(string(data))
		if first == nil {
			first = parsed
		}
		if len(parsed.Blocks) > 0 || len(parsed.Aliases) > 0 {
			return parsed, nil
		}
	}

	if !openedAny {
		return nil, apperr.New(apperr.ConfigNotFound, "ssh_config not found in any storage root", nil)
	}
	return first, nil
}

// Resolve wyszukuje alias w świeżo wczytanym pliku
func (s *Store) Resolve(alias string) (models.ResolvedHost, error) {
	file, err := s.LoadAliasFile()
	if err != nil {
		return models.ResolvedHost{}, err
	}

	resolved, ok := ResolveIn(file, alias)
	if !ok {
		return models.ResolvedHost{}, apperr.New(apperr.ConfigNoMatch, "no host block matches "+alias, nil)
	}
	return resolved, nil
}

// Aliases zwraca jawne aliasy z pliku (dla komendy hosts)
func (s *Store) Aliases() ([]string, error) {
	file, err := s.LoadAliasFile()
	if err != nil {
		return nil, err
	}
	return file.Aliases, nil
}

// DefaultFontSizeBig czyta globalną dyrektywę FontSize
func (s *Store) DefaultFontSizeBig() (big, ok bool) {
	file, err := s.LoadAliasFile()
	if err != nil || !file.Global.HasFontSize {
		return false, false
	}
	return file.Global.FontSizeBig, true
}

// ---- profile sieci ----

// ParseWifiProfiles parsuje plik profili sieci. "Network" otwiera
// profil; dyrektywy na górze pliku otwierają profil bez nazwy.
func ParseWifiProfiles(text string) []models.WifiProfile {
	var profiles []models.WifiProfile
	var current models.WifiProfile
	inProfile := false
	order := 0

	push := func() {
		if current.Name == "" && current.SSID == "" {
			return
		}
		profiles = append(profiles, current)
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(stripInlineComment(rawLine))
		if line == "" {
			continue
		}

		key, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		directive := strings.ToLower(key)
		cleaned := trimMatchingQuotes(strings.TrimSpace(value))

		if directive == "network" {
			if inProfile {
				push()
			}
			current = models.WifiProfile{Name: cleaned, FileOrder: order}
			order++
			inProfile = true
			continue
		}

		if !inProfile {
			current = models.WifiProfile{FileOrder: order}
			order++
			inProfile = true
		}

		switch directive {
		case "ssid":
			current.SSID = cleaned
		case "password":
			current.Password = cleaned
		case "autoconnect":
			if parsed, ok := ParseBoolFlag(cleaned); ok {
				current.AutoConnect = parsed
				current.HasAutoConnect = true
			}
		case "priority":
			// Akceptowane dla zgodności; obecnie nieużywane.
		}
	}

	if inProfile {
		push()
	}

	return profiles
}

// LoadWifiProfiles wczytuje profile z pierwszego kandydata z treścią
func (s *Store) LoadWifiProfiles() ([]models.WifiProfile, error) {
	openedAny := false

	for _, path := range s.storage.ConfigCandidates(WifiFileName) {
		data, err := s.storage.ReadFile(path)
		if err != nil {
			continue
		}
		openedAny = true
		if profiles := ParseWifiProfiles(string(data)); len(profiles) > 0 {
			return profiles, nil
		}
	}

	if !openedAny {
		return nil, apperr.New(apperr.ConfigNotFound, "wifi_config not found in any storage root", nil)
	}
	return nil, nil
}

// FindProfile dopasowuje nazwę profilu, a potem dosłowny SSID,
// bez rozróżniania wielkości liter
func FindProfile(profiles []models.WifiProfile, nameOrSSID string) *models.WifiProfile {
	query := strings.ToLower(strings.TrimSpace(nameOrSSID))
	if query == "" {
		return nil
	}

	for i := range profiles {
		if profiles[i].Name != "" && strings.ToLower(profiles[i].Name) == query {
			return &profiles[i]
		}
	}
	for i := range profiles {
		if profiles[i].SSID != "" && strings.ToLower(profiles[i].SSID) == query {
			return &profiles[i]
		}
	}
	return nil
}

// SplitQuotedArgs dzieli argumenty komendy, respektując cudzysłowy
// (SSID i hasła ze spacjami)
func SplitQuotedArgs(input string) []string {
	var args []string
	var token strings.Builder
	inQuotes := false
	var quoteChar byte

	flush := func() {
		if token.Len() > 0 {
			args = append(args, token.String())
			token.Reset()
		}
	}

	for i := 0; i < len(input); i++ {
		c := input[i]
		if (c == '"' || c == '\'') && (!inQuotes || c == quoteChar) {
			if inQuotes {
				inQuotes = false
				quoteChar = 0
			} else {
				inQuotes = true
				quoteChar = c
			}
			continue
		}
		if !inQuotes && (c == ' ' || c == '\t') {
			flush()
			continue
		}
		token.WriteByte(c)
	}
	flush()

	return args
}
