// internal/ui/commands.go

package ui

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pocketssh/internal/apperr"
	"pocketssh/internal/config"
	"pocketssh/internal/models"
	"pocketssh/internal/ssh"
	"pocketssh/internal/ui/messages"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const joinTimeout = 30 * time.Second

var helpLines = []string{
	"connect <alias>              open session from ssh_config",
	"connect <ssid> <password>    join a network ad hoc",
	"ssh <alias> | <user@host[:port]> | <host> <port> <user> <password>",
	"sshkey [name|clear]          list keys or pin one for connects",
	"sshkey <host> <port> <user> <keyfile>",
	"wifi [list|auto|<name> [password]]",
	"hosts                        list configured aliases",
	"fetch <remote> [localdir]    copy file from host (when connected)",
	"push <local> [remote]        copy file to host (when connected)",
	"serialrx <filename>          receive a file over the input line",
	"storagecheck                 probe storage roots and config files",
	"clear / disconnect / exit / help",
}

// submit przetwarza zatwierdzoną linię wejścia
func (c *Controller) submit() tea.Cmd {
	line := c.input.Value()
	c.input.SetValue("")
	c.hist.ResetCursor()

	if c.pendingHost != nil {
		host := *c.pendingHost
		c.pendingHost = nil
		c.input.EchoMode = textinput.EchoNormal
		return c.startConnect(host, line)
	}

	if c.sideloading {
		return c.sideloadLine(line)
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	if c.engine.Connected() {
		return c.submitRemote(trimmed)
	}

	c.hist.Add(trimmed)
	c.transcript(promptStyle.Render("> ") + trimmed)
	return c.dispatch(trimmed)
}

// submitRemote: przy aktywnej sesji linia idzie do zdalnej powłoki,
// poza kilkoma komendami lokalnymi
func (c *Controller) submitRemote(line string) tea.Cmd {
	c.hist.Add(line)

	args := config.SplitQuotedArgs(line)
	switch strings.ToLower(args[0]) {
	case "disconnect":
		c.engine.Disconnect()
		return nil
	case "exit":
		return c.quit()
	case "fetch":
		return c.fetchCmd(args[1:])
	case "push":
		return c.pushCmd(args[1:])
	}

	if err := c.engine.Send(line); err != nil {
		c.transcript(errorStyle.Render("Send failed: " + err.Error()))
	}
	return nil
}

func (c *Controller) dispatch(line string) tea.Cmd {
	args := config.SplitQuotedArgs(line)

	switch strings.ToLower(args[0]) {
	case "help":
		for _, l := range helpLines {
			c.transcript(helpStyle.Render(l))
		}
	case "hosts":
		c.cmdHosts()
	case "connect":
		switch len(args) {
		case 2:
			resolved, err := c.configs.Resolve(args[1])
			if err != nil {
				c.transcript(errorStyle.Render(err.Error()))
				return nil
			}
			c.transcript(fmt.Sprintf("Resolved %s -> %s:%d", args[1], resolved.HostName, resolved.Port))
			return c.startConnect(resolved, "")
		case 3:
			// connect <ssid> <password> dołącza do sieci
			return c.joinCmd(models.WifiProfile{SSID: args[1], Password: args[2]})
		default:
			c.transcript("usage: connect <alias> | connect <ssid> <password>")
			return nil
		}
	case "ssh":
		return c.cmdSSH(args[1:])
	case "sshkey":
		return c.cmdKeys(args[1:])
	case "wifi":
		return c.cmdWifi(args[1:])
	case "clear":
		c.buffer.Clear()
		c.refreshView()
	case "disconnect":
		c.transcript("Not connected.")
	case "fetch", "push":
		c.transcript("Not connected.")
	case "exit":
		return c.quit()
	case "storagecheck":
		c.cmdStorageCheck()
	case "serialrx":
		if len(args) < 2 {
			c.transcript("usage: serialrx <filename>")
			return nil
		}
		c.receiver.SetTarget(args[1])
		c.sideloading = true
		c.transcript("Receiving " + args[1] + ". Send BEGIN <size> <crc32hex>, DATA <hex> lines, then END.")
	case "begin":
		// nazwana forma BEGIN startuje zrzut bez wcześniejszego serialrx
		cmd := c.sideloadLine(line)
		c.sideloading = c.receiver.Active()
		return cmd
	default:
		c.transcript(errorStyle.Render("Unknown command: " + args[0] + " (try help)"))
	}
	return nil
}

func (c *Controller) sideloadLine(line string) tea.Cmd {
	done, err := c.receiver.HandleLine(line)
	if err != nil {
		c.transcript(errorStyle.Render("recv: " + err.Error()))
	}
	if done || err != nil {
		if done && err == nil && c.receiver.Name() != "" {
			c.transcript("Received " + c.receiver.Name())
		}
		c.sideloading = false
	}
	return nil
}

// startConnect dobiera poświadczenia i startuje próbę połączenia.
// Brak klucza i hasła przełącza linię wejścia w tryb hasła.
func (c *Controller) startConnect(host models.ResolvedHost, password string) tea.Cmd {
	if c.connecting {
		c.transcript("Connect already in progress.")
		return nil
	}
	if c.engine.Connected() {
		c.transcript("Already connected; disconnect first.")
		return nil
	}
	if host.User == "" {
		c.transcript(errorStyle.Render("No user for " + host.HostName + " (set User in ssh_config)"))
		return nil
	}
	if !c.link.Up() && host.Network == "" {
		c.transcript(errorStyle.Render("No network link (join a network first or set Network for " + host.Alias + ")"))
		return nil
	}

	c.registry.Load()

	if c.pinnedKey != "" {
		if key, ok := c.registry.Get(c.pinnedKey); ok {
			c.connecting = true
			return tea.Batch(c.spin.Tick, c.connectCmd(host, ssh.Credentials{Key: key}))
		}
		c.transcript("Pinned key " + c.pinnedKey + " is gone, ignoring.")
		c.pinnedKey = ""
	}

	if password == "" && len(host.IdentityFiles) > 0 {
		if c.hasUsableIdentity(host.IdentityFiles) {
			c.connecting = true
			return tea.Batch(c.spin.Tick, c.identityConnectCmd(host))
		}
		if host.IdentitiesOnly {
			c.transcript(errorStyle.Render("IdentitiesOnly set but no usable key was found"))
			return nil
		}
	}

	if password == "" {
		c.pendingHost = &host
		c.input.EchoMode = textinput.EchoPassword
		return nil
	}

	c.connecting = true
	return tea.Batch(c.spin.Tick, c.connectCmd(host, ssh.Credentials{Password: password}))
}

// resolveIdentity zamienia wpis IdentityFile na klucz: najpierw
// rejestr, potem kandydat na nośniku
func (c *Controller) resolveIdentity(identity string) (models.Key, bool) {
	if key, ok := c.registry.Match(identity); ok {
		return key, true
	}
	path, err := c.registry.ResolveOnDisk(identity)
	if err != nil {
		return models.Key{}, false
	}
	data, err := c.storage.ReadFile(path)
	if err != nil || len(data) == 0 {
		return models.Key{}, false
	}
	return models.NewKey(filepath.Base(path), data), true
}

func (c *Controller) hasUsableIdentity(identities []string) bool {
	for _, identity := range identities {
		if _, ok := c.resolveIdentity(identity); ok {
			return true
		}
	}
	return false
}

// identityConnectCmd przechodzi po kolei każdy IdentityFile aliasu:
// nieczytelne wpisy pomija, kończy na pierwszym przyjętym kluczu,
// a porażkę zgłasza dopiero po odrzuceniu wszystkich
func (c *Controller) identityConnectCmd(host models.ResolvedHost) tea.Cmd {
	return func() tea.Msg {
		return c.tryIdentities(host, c.connectOnce)
	}
}

func (c *Controller) tryIdentities(host models.ResolvedHost, attempt func(models.ResolvedHost, ssh.Credentials) error) tea.Msg {
	var lastErr error
	tried := 0
	for _, identity := range host.IdentityFiles {
		key, ok := c.resolveIdentity(identity)
		if !ok {
			c.send(messages.TranscriptMsg("Skipping unreadable key " + identity))
			continue
		}
		c.send(messages.TranscriptMsg("Trying identity: " + key.Name))
		tried++
		err := attempt(host, ssh.Credentials{Key: key})
		if err == nil {
			return messages.ConnectFinishedMsg{}
		}
		lastErr = err
	}
	if tried == 0 {
		lastErr = apperr.New(apperr.IdentityUnavailable,
			"no usable identity for "+host.Alias, nil)
	}
	return messages.ConnectFinishedMsg{Err: lastErr}
}

// connectCmd wykonuje pojedynczą próbę poza pętlą zdarzeń
func (c *Controller) connectCmd(host models.ResolvedHost, creds ssh.Credentials) tea.Cmd {
	return func() tea.Msg {
		return messages.ConnectFinishedMsg{Err: c.connectOnce(host, creds)}
	}
}

// connectOnce dba najpierw o łącze, a po nieudanej próbie z leżącym
// łączem i przypisaną siecią dołącza do niej i ponawia raz
func (c *Controller) connectOnce(host models.ResolvedHost, creds ssh.Credentials) error {
	if err := c.ensureLink(host); err != nil {
		return err
	}

	err := c.engine.Connect(host, creds)
	if err == nil || host.Network == "" || c.link.Up() {
		return err
	}

	c.send(messages.TranscriptMsg("Rejoining network " + host.Network + " and retrying ..."))
	if jerr := c.ensureLink(host); jerr != nil {
		return err
	}
	return c.engine.Connect(host, creds)
}

// ensureLink dołącza do przypisanej sieci aliasu, gdy łącze leży
func (c *Controller) ensureLink(host models.ResolvedHost) error {
	if c.link.Up() {
		return nil
	}
	if host.Network == "" {
		return apperr.New(apperr.NetworkUnavailable, "no network link", nil)
	}

	profiles, err := c.configs.LoadWifiProfiles()
	if err != nil {
		return err
	}
	profile := config.FindProfile(profiles, host.Network)
	if profile == nil {
		return apperr.New(apperr.NetworkUnavailable, "unknown network "+host.Network, nil)
	}

	c.send(messages.TranscriptMsg("Joining network " + host.Network + " ..."))
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	return c.link.Join(ctx, *profile)
}

func (c *Controller) cmdHosts() {
	aliases, err := c.configs.Aliases()
	if err != nil {
		c.transcript(errorStyle.Render(err.Error()))
		return
	}
	if len(aliases) == 0 {
		c.transcript("No host aliases configured.")
		return
	}
	for _, alias := range aliases {
		c.transcript("  " + alias)
	}
}

// cmdSSH obsługuje trzy formy: alias, user@host[:port] oraz
// <host> <port> <user> <password>
func (c *Controller) cmdSSH(args []string) tea.Cmd {
	switch len(args) {
	case 1:
		if strings.Contains(args[0], "@") {
			host, err := parseTarget(args[0])
			if err != nil {
				c.transcript(errorStyle.Render(err.Error()))
				return nil
			}
			return c.startConnect(host, "")
		}
		resolved, err := c.configs.Resolve(args[0])
		if err != nil {
			c.transcript(errorStyle.Render(err.Error()))
			return nil
		}
		return c.startConnect(resolved, "")
	case 4:
		host, err := directHost(args[0], args[1], args[2])
		if err != nil {
			c.transcript(errorStyle.Render(err.Error()))
			return nil
		}
		return c.startConnect(host, args[3])
	default:
		c.transcript("usage: ssh <alias> | ssh <user@host[:port]> | ssh <host> <port> <user> <password>")
		return nil
	}
}

// cmdKeys: bez argumentów wypisuje załadowane klucze; jeden argument
// przypina klucz (lub "clear"); forma <host> <port> <user> <keyfile>
// łączy się od razu z kluczem
func (c *Controller) cmdKeys(args []string) tea.Cmd {
	c.registry.Load()

	switch len(args) {
	case 0:
		if c.registry.Len() == 0 {
			c.transcript("No keys loaded.")
			return nil
		}
		for _, key := range c.registry.Keys() {
			mark := "  "
			if key.Name == c.pinnedKey {
				mark = "* "
			}
			c.transcript(mark + key.Name)
		}
		return nil

	case 1:
		if strings.EqualFold(args[0], "clear") {
			c.pinnedKey = ""
			c.transcript("Key selection cleared.")
			return nil
		}
		key, ok := c.registry.Match(args[0])
		if !ok {
			c.transcript(errorStyle.Render("No unique key matches " + args[0]))
			return nil
		}
		c.pinnedKey = key.Name
		c.transcript("Using key " + key.Name + " for connects.")
		return nil

	case 4:
		host, err := directHost(args[0], args[1], args[2])
		if err != nil {
			c.transcript(errorStyle.Render(err.Error()))
			return nil
		}
		key, ok := c.resolveIdentity(args[3])
		if !ok {
			c.transcript(errorStyle.Render("No key matches " + args[3]))
			return nil
		}
		if c.connecting || c.engine.Connected() {
			c.transcript("Already connected or connecting.")
			return nil
		}
		c.connecting = true
		return tea.Batch(c.spin.Tick, c.connectCmd(host, ssh.Credentials{Key: key}))

	default:
		c.transcript("usage: sshkey [name|clear] | sshkey <host> <port> <user> <keyfile>")
		return nil
	}
}

// directHost buduje cel połączenia z jawnych argumentów
func directHost(hostname, portArg, user string) (models.ResolvedHost, error) {
	port, err := strconv.Atoi(portArg)
	if err != nil || port < 1 || port > 65535 {
		return models.ResolvedHost{}, fmt.Errorf("bad port %q", portArg)
	}
	if hostname == "" || user == "" {
		return models.ResolvedHost{}, fmt.Errorf("host and user are required")
	}
	return models.ResolvedHost{
		Alias:         hostname,
		HostName:      hostname,
		User:          user,
		Port:          port,
		StrictHostKey: config.DefaultStrictHostKey,
	}, nil
}

// joinCmd dołącza do sieci w tle
func (c *Controller) joinCmd(profile models.WifiProfile) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()
		err := c.link.Join(ctx, profile)
		return messages.WifiFinishedMsg{Network: profileLabel(profile), Err: err}
	}
}

func (c *Controller) cmdWifi(args []string) tea.Cmd {
	if len(args) == 0 || strings.EqualFold(args[0], "list") {
		profiles, err := c.configs.LoadWifiProfiles()
		if err != nil {
			c.transcript(errorStyle.Render(err.Error()))
			return nil
		}
		if len(profiles) == 0 {
			c.transcript("No network profiles.")
			return nil
		}
		for _, p := range profiles {
			label := p.Name
			if label == "" {
				label = p.SSID
			}
			auto := ""
			if p.HasAutoConnect && p.AutoConnect {
				auto = " (auto)"
			}
			c.transcript("  " + label + auto)
		}
		return nil
	}

	if strings.EqualFold(args[0], "auto") {
		return c.wifiJoinAutoCmd()
	}

	profiles, err := c.configs.LoadWifiProfiles()
	if err != nil && len(args) < 2 {
		c.transcript(errorStyle.Render(err.Error()))
		return nil
	}

	profile := config.FindProfile(profiles, args[0])
	if profile == nil {
		if len(args) < 2 {
			c.transcript(errorStyle.Render("Unknown network " + args[0] + " (give a password for an ad-hoc join)"))
			return nil
		}
		profile = &models.WifiProfile{SSID: args[0], Password: args[1]}
	}

	return c.joinCmd(*profile)
}

// wifiAutoCmd próbuje raz na start profile z AutoConnect, w kolejności
// pliku, kończąc na pierwszym sukcesie
func (c *Controller) wifiAutoCmd() tea.Cmd {
	if c.wifiAutoTried {
		return nil
	}
	c.wifiAutoTried = true
	return c.wifiJoinAutoCmd()
}

func (c *Controller) wifiJoinAutoCmd() tea.Cmd {
	return func() tea.Msg {
		profiles, err := c.configs.LoadWifiProfiles()
		if err != nil {
			return nil
		}
		for _, p := range profiles {
			if !p.HasAutoConnect || !p.AutoConnect {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
			err := c.link.Join(ctx, p)
			cancel()
			if err == nil {
				return messages.WifiFinishedMsg{Network: profileLabel(p)}
			}
		}
		return nil
	}
}

func profileLabel(p models.WifiProfile) string {
	if p.Name != "" {
		return p.Name
	}
	return p.SSID
}

func (c *Controller) cmdStorageCheck() {
	for _, root := range c.storage.Roots() {
		state := "ok"
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			state = "missing"
		}
		c.transcript(fmt.Sprintf("root %-30s %s", root, state))
	}

	candidates := c.storage.ConfigCandidates(config.HostsFileName)
	found := false
	for _, path := range candidates {
		data, err := c.storage.ReadFile(path)
		if err != nil {
			continue
		}
		found = true
		parsed := config.ParseAliasFile(string(data))
		c.transcript(fmt.Sprintf("config %s: %d host blocks, %d aliases",
			path, len(parsed.Blocks), len(parsed.Aliases)))
	}
	if !found {
		c.transcript("No readable ssh_config candidate.")
	}

	if profiles, err := c.configs.LoadWifiProfiles(); err == nil {
		c.transcript(fmt.Sprintf("wifi profiles: %d", len(profiles)))
	} else {
		c.transcript("No readable wifi_config candidate.")
	}

	c.registry.Load()
	c.transcript(fmt.Sprintf("keys loaded: %d", c.registry.Len()))
}

func (c *Controller) fetchCmd(args []string) tea.Cmd {
	if len(args) < 1 {
		c.transcript("usage: fetch <remote> [localdir]")
		return nil
	}
	remote := args[0]
	localDir := "."
	if len(args) > 1 {
		localDir = args[1]
	} else if root, err := c.storage.FirstRoot(); err == nil {
		localDir = root
	}

	c.transcript("Fetching " + remote + " ...")
	return func() tea.Msg {
		err := c.transfer.Fetch(remote, localDir, nil)
		return messages.TransferFinishedMsg{Desc: "Fetched " + remote, Err: err}
	}
}

func (c *Controller) pushCmd(args []string) tea.Cmd {
	if len(args) < 1 {
		c.transcript("usage: push <local> [remote]")
		return nil
	}
	local := args[0]
	remote := ""
	if len(args) > 1 {
		remote = args[1]
	}

	c.transcript("Pushing " + local + " ...")
	return func() tea.Msg {
		err := c.transfer.Push(local, remote, nil)
		return messages.TransferFinishedMsg{Desc: "Pushed " + local, Err: err}
	}
}

// parseTarget rozbiera argument user@host[:port]
func parseTarget(target string) (models.ResolvedHost, error) {
	at := strings.Index(target, "@")
	if at <= 0 || at == len(target)-1 {
		return models.ResolvedHost{}, fmt.Errorf("usage: ssh <user@host[:port]>")
	}

	user := target[:at]
	rest := target[at+1:]
	host := rest
	port := config.DefaultPort

	if h, p, err := net.SplitHostPort(rest); err == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return models.ResolvedHost{}, fmt.Errorf("bad port %q", p)
		}
		host, port = h, n
	}

	if host == "" {
		return models.ResolvedHost{}, fmt.Errorf("usage: ssh <user@host[:port]>")
	}

	return models.ResolvedHost{
		Alias:         target,
		HostName:      host,
		User:          user,
		Port:          port,
		StrictHostKey: config.DefaultStrictHostKey,
	}, nil
}
