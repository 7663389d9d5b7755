// internal/ui/controller.go

package ui

import (
	"fmt"
	"time"

	"pocketssh/internal/config"
	"pocketssh/internal/history"
	"pocketssh/internal/keys"
	"pocketssh/internal/models"
	"pocketssh/internal/netlink"
	"pocketssh/internal/sideload"
	"pocketssh/internal/ssh"
	"pocketssh/internal/storage"
	"pocketssh/internal/terminal"
	"pocketssh/internal/ui/messages"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap definiuje skróty klawiszowe
type KeyMap struct {
	Quit       key.Binding
	Submit     key.Binding
	Older      key.Binding
	Newer      key.Binding
	DropEntry  key.Binding
	ClearView  key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
}

// DefaultKeyMap zwraca domyślne ustawienia klawiszy
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Older: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "older"),
		),
		Newer: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "newer"),
		),
		DropEntry: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "drop entry"),
		),
		ClearView: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "clear"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
	}
}

// Controller jest korzeniem interfejsu: jedna pętla zdarzeń posiada
// widok, linię wejścia i pośredniczy między silnikiem sesji a resztą
type Controller struct {
	program *tea.Program

	storage   *storage.Store
	configs   *config.Store
	registry  *keys.Registry
	link      netlink.Link
	buffer    *terminal.Buffer
	engine    *ssh.Engine
	transfer  *ssh.Transfer
	hist      *history.History
	histStore *history.Store
	receiver  *sideload.Receiver

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	keymap   KeyMap

	width, height int
	ready         bool

	status        string
	connecting    bool
	sideloading   bool
	wifiAutoTried bool
	pinnedKey     string
	fontBig       bool

	// połączenie czekające na hasło z linii wejścia
	pendingHost *models.ResolvedHost
}

// New składa kontroler wraz z całym stanem aplikacji
func New(st *storage.Store, link netlink.Link) (*Controller, error) {
	buffer := terminal.NewBuffer()

	histStore, err := history.NewStore(st)
	if err != nil {
		return nil, err
	}
	hist := history.New()
	if saved, err := histStore.Load(); err == nil {
		hist.Restore(saved)
	}

	input := textinput.New()
	input.Prompt = ""
	input.Placeholder = "type help"
	input.CharLimit = 512
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	c := &Controller{
		storage:   st,
		configs:   config.NewStore(st),
		registry:  keys.NewRegistry(st),
		link:      link,
		buffer:    buffer,
		hist:      hist,
		histStore: histStore,
		input:     input,
		spin:      spin,
		keymap:    DefaultKeyMap(),
		status:    "idle",
	}

	c.engine = ssh.NewEngine(buffer, ssh.Events{
		Output: func() { c.send(messages.OutputMsg{}) },
		Line:   func(line string) { c.send(messages.TranscriptMsg(line)) },
		State:  func(p ssh.Phase) { c.send(messages.PhaseMsg(p.String())) },
		Closed: func(err error) { c.send(messages.SessionClosedMsg{Err: err}) },
	})
	c.transfer = ssh.NewTransfer(c.engine)
	if big, ok := c.configs.DefaultFontSizeBig(); ok {
		c.fontBig = big
	}
	c.receiver = sideload.NewReceiver(st, func(percent int, received, total int64) {
		c.send(messages.TranscriptMsg(fmt.Sprintf("recv %d%% (%d/%d)", percent, received, total)))
	})

	return c, nil
}

// AttachProgram podpina program, do którego trafiają powiadomienia
// z goroutyn silnika
func (c *Controller) AttachProgram(p *tea.Program) {
	c.program = p
}

func (c *Controller) send(msg tea.Msg) {
	if c.program != nil {
		c.program.Send(msg)
	}
}

func (c *Controller) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		c.spin.Tick,
		flushTick(),
		saveTick(),
		c.wifiAutoCmd(),
	)
}

func flushTick() tea.Cmd {
	return tea.Tick(terminal.FlushInterval, func(t time.Time) tea.Msg {
		return messages.FlushTickMsg(t)
	})
}

func saveTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return messages.SaveTickMsg(t)
	})
}

func (c *Controller) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
		viewHeight := msg.Height - 2
		if viewHeight < 1 {
			viewHeight = 1
		}
		if !c.ready {
			c.viewport = viewport.New(msg.Width, viewHeight)
			c.ready = true
		} else {
			c.viewport.Width = msg.Width
			c.viewport.Height = viewHeight
		}
		c.input.Width = msg.Width - 3
		c.refreshView()
		return c, nil

	case tea.KeyMsg:
		return c.handleKey(msg)

	case messages.OutputMsg:
		c.maybeFlush(false)
		return c, nil

	case messages.FlushTickMsg:
		c.maybeFlush(true)
		return c, flushTick()

	case messages.SaveTickMsg:
		if c.hist.NeedsSave(time.Now()) {
			if err := c.histStore.SaveIfDirty(c.hist); err != nil {
				c.transcript("history save failed: " + err.Error())
			}
		}
		return c, saveTick()

	case messages.TranscriptMsg:
		c.transcript(string(msg))
		return c, nil

	case messages.PhaseMsg:
		c.status = string(msg)
		return c, nil

	case messages.ConnectFinishedMsg:
		c.connecting = false
		if msg.Err != nil {
			c.transcript(errorStyle.Render("Connect failed: " + msg.Err.Error()))
		}
		return c, nil

	case messages.SessionClosedMsg:
		c.connecting = false
		c.transcript("Session closed.")
		c.maybeFlush(true)
		if err := c.histStore.SaveIfDirty(c.hist); err != nil {
			c.transcript("history save failed: " + err.Error())
		}
		return c, nil

	case messages.TransferFinishedMsg:
		if msg.Err != nil {
			c.transcript(errorStyle.Render("Transfer failed: " + msg.Err.Error()))
		} else {
			c.transcript(msg.Desc)
		}
		return c, nil

	case messages.WifiFinishedMsg:
		if msg.Err != nil {
			c.transcript(errorStyle.Render("Network join failed: " + msg.Err.Error()))
		} else if msg.Network != "" {
			c.transcript("Joined network " + msg.Network)
		}
		return c, nil

	case spinner.TickMsg:
		if !c.connecting {
			return c, nil
		}
		var cmd tea.Cmd
		c.spin, cmd = c.spin.Update(msg)
		return c, cmd
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *Controller) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, c.keymap.Quit):
		return c, c.quit()

	case key.Matches(msg, c.keymap.Submit):
		return c, c.submit()

	case key.Matches(msg, c.keymap.Older):
		if text, ok := c.hist.Older(); ok {
			c.input.SetValue(text)
			c.input.CursorEnd()
		}
		return c, nil

	case key.Matches(msg, c.keymap.Newer):
		text, ok := c.hist.Newer()
		if ok {
			c.input.SetValue(text)
			c.input.CursorEnd()
		} else {
			c.input.SetValue("")
		}
		return c, nil

	case key.Matches(msg, c.keymap.DropEntry):
		if text, ok := c.hist.DeleteCurrent(); ok {
			c.input.SetValue(text)
			c.input.CursorEnd()
		} else {
			c.input.SetValue("")
		}
		return c, nil

	case key.Matches(msg, c.keymap.ClearView):
		c.buffer.Clear()
		c.refreshView()
		return c, nil

	case key.Matches(msg, c.keymap.PageUp):
		c.viewport.HalfViewUp()
		return c, nil

	case key.Matches(msg, c.keymap.PageDown):
		c.viewport.HalfViewDown()
		return c, nil
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

// quit zapisuje historię i rozbiera sesję przed wyjściem
func (c *Controller) quit() tea.Cmd {
	c.engine.Disconnect()
	if err := c.histStore.SaveIfDirty(c.hist); err != nil {
		c.transcript("history save failed: " + err.Error())
	}
	return tea.Quit
}

// maybeFlush opróżnia bufor na ekran: od razu gdy forced, inaczej po
// okresie ciszy albo przy nagromadzonych danych
func (c *Controller) maybeFlush(forced bool) {
	pending := c.buffer.Pending()
	if pending == 0 {
		return
	}
	if !forced && pending < terminal.FlushChunk &&
		time.Since(c.buffer.LastIngest()) < terminal.FlushInterval {
		return
	}
	if c.buffer.FlushPending(nil) {
		c.refreshView()
	}
}

func (c *Controller) transcript(line string) {
	c.buffer.AppendLine(line)
	c.refreshView()
}

func (c *Controller) refreshView() {
	if !c.ready {
		return
	}
	atBottom := c.viewport.AtBottom()
	c.viewport.SetContent(c.buffer.Scrollback())
	if atBottom {
		c.viewport.GotoBottom()
	}
}

func (c *Controller) View() string {
	if !c.ready {
		return "starting..."
	}

	status := statusHostStyle.Render(c.statusHost()) +
		statusPhaseStyle.Render("  "+c.status)
	if c.connecting {
		status += "  " + c.spin.View()
	}
	if ssid := c.link.SSID(); ssid != "" {
		status += statusNetStyle.Render("  net:" + ssid)
	}

	prompt := "> "
	if c.pendingHost != nil {
		prompt = "password: "
	} else if c.sideloading {
		prompt = "recv> "
	}

	bar := statusBarStyle
	if c.fontBig {
		bar = bar.Bold(true)
	}

	return bar.Width(c.width).Render(status) + "\n" +
		c.viewport.View() + "\n" +
		promptStyle.Render(prompt) + c.input.View()
}

func (c *Controller) statusHost() string {
	host := c.engine.Host()
	if host.HostName == "" || c.engine.Phase() == ssh.PhaseIdle {
		return "pocketssh"
	}
	return fmt.Sprintf("%s@%s:%d", host.User, host.HostName, host.Port)
}
