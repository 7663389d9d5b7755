// internal/ssh/engine.go

package ssh

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"pocketssh/internal/apperr"
	"pocketssh/internal/models"
	"pocketssh/internal/terminal"

	"golang.org/x/crypto/ssh"
)

// Phase opisuje etap życia sesji
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSocketConnecting
	PhaseHandshaking
	PhaseAuthenticating
	PhaseChannelOpening
	PhaseConnected
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSocketConnecting:
		return "connecting"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseChannelOpening:
		return "opening channel"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	}
	return "unknown"
}

const (
	dialTimeout    = 10 * time.Second
	channelTimeout = 2 * time.Second

	readChunk       = 1024
	sendRetryBudget = 20
	sendRetryDelay  = 10 * time.Millisecond
)

// ErrTryAgain sygnalizuje chwilowo niezapisywalny kanał; licznik prób
// w Send traktuje tak samo timeouty sieciowe
var ErrTryAgain = errors.New("channel busy, try again")

// Credentials wybiera metodę uwierzytelnienia: klucz z pamięci, gdy
// ustawiony, inaczej hasło
type Credentials struct {
	Password string
	Key      models.Key
}

// Events to powiadomienia silnika dla pętli zdarzeń. Wszystkie mogą
// być wołane z goroutyny czytającej.
type Events struct {
	Output func()          // nowe bajty w buforze terminala
	Line   func(string)    // linia transkryptu
	State  func(Phase)     // zmiana etapu
	Closed func(err error) // sesja zakończona
}

// Engine prowadzi jedną sesję SSH: gniazdo, uzgadnianie, kanał z
// powłoką, goroutynę czytającą i ograniczone ponawianie zapisu
type Engine struct {
	mu     sync.Mutex
	phase  Phase
	buffer *terminal.Buffer
	events Events

	host   models.ResolvedHost
	conn   net.Conn
	client *ssh.Client
	sess   *ssh.Session
	stdin  channelWriter

	teardown  *sync.Once
	recovered bool
}

// channelWriter pozwala podstawić kanał w testach ponawiania zapisu
type channelWriter interface {
	Write(p []byte) (int, error)
	Close() error
}

func NewEngine(buffer *terminal.Buffer, events Events) *Engine {
	return &Engine{
		phase:  PhaseIdle,
		buffer: buffer,
		events: events,
	}
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Engine) Connected() bool {
	return e.Phase() == PhaseConnected
}

func (e *Engine) Host() models.ResolvedHost {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host
}

// Client udostępnia klienta ustanowionej sesji (transfer plików)
func (e *Engine) Client() *ssh.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	if e.events.State != nil {
		e.events.State(p)
	}
}

func (e *Engine) line(format string, args ...interface{}) {
	if e.events.Line != nil {
		e.events.Line(fmt.Sprintf(format, args...))
	}
}

// Connect przeprowadza pełne zestawienie sesji. Blokuje do momentu
// uruchomienia powłoki; wołający uruchamia je poza pętlą zdarzeń.
func (e *Engine) Connect(host models.ResolvedHost, creds Credentials) error {
	if e.Connected() {
		return fmt.Errorf("session already established")
	}

	e.mu.Lock()
	e.host = host
	e.teardown = &sync.Once{}
	e.recovered = false
	e.mu.Unlock()

	addr := net.JoinHostPort(host.HostName, strconv.Itoa(host.Port))
	e.line("Connecting to %s@%s ...", host.User, addr)

	config, err := e.clientConfig(host, creds)
	if err != nil {
		e.setPhase(PhaseDisconnected)
		return err
	}

	client, err := e.establish(addr, config)
	if err != nil {
		e.Disconnect()
		return err
	}

	e.mu.Lock()
	e.client = client
	e.mu.Unlock()

	if err := e.openShell(client); err != nil {
		e.Disconnect()
		return err
	}

	e.setPhase(PhaseConnected)
	e.line("Connected.")
	return nil
}

func (e *Engine) clientConfig(host models.ResolvedHost, creds Credentials) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if len(creds.Key.Data) > 0 {
		signer, err := ssh.ParsePrivateKey(creds.Key.Data)
		if err != nil {
			return nil, apperr.New(apperr.IdentityUnavailable,
				fmt.Sprintf("cannot parse key %s: %v", creds.Key.Name, err), err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
		e.line("Using key %s", creds.Key.Name)
	} else {
		auth = append(auth, ssh.Password(creds.Password))
	}

	if host.StrictHostKey != "" && host.StrictHostKey != "no" {
		e.line("Note: host key is not verified (StrictHostKeyChecking %s)", host.StrictHostKey)
	}

	return &ssh.ClientConfig{
		User:            host.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}, nil
}

// establish zestawia gniazdo i przeprowadza uzgadnianie z jedną próbą
// odzyskania pamięci: pierwsza nieudana alokacja sesji zwalnia
// historię ekranu i ponawia całość
func (e *Engine) establish(addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	for {
		conn, err := e.dial(addr)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.conn = conn
		e.mu.Unlock()

		e.setPhase(PhaseHandshaking)
		client, err := e.handshake(conn, addr, config)
		if err == nil {
			return client, nil
		}

		conn.Close()

		if isAuthFailure(err) {
			e.setPhase(PhaseAuthenticating)
			e.line("Authentication failed: %v", err)
			return nil, apperr.New(apperr.ProtocolError, "authentication failed", err)
		}

		e.mu.Lock()
		retry := !e.recovered
		e.recovered = true
		e.mu.Unlock()
		if !retry {
			return nil, apperr.New(apperr.ProtocolError, "handshake failed", err)
		}

		e.line("Handshake failed, freeing buffers and retrying ...")
		e.buffer.FreeScrollback()
		runtime.GC()
	}
}

// dial łączy gniazdo; dosłowny adres IP omija resolver
func (e *Engine) dial(addr string) (net.Conn, error) {
	e.setPhase(PhaseSocketConnecting)

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, apperr.New(apperr.SocketError, "bad address "+addr, err)
	}

	targets := []string{addr}
	if net.ParseIP(host) == nil {
		addrs, err := net.LookupHost(host)
		if err != nil {
			return nil, apperr.New(apperr.SocketError, "cannot resolve "+host, err)
		}
		targets = targets[:0]
		for _, a := range addrs {
			targets = append(targets, net.JoinHostPort(a, port))
		}
	}

	var lastErr error
	for _, target := range targets {
		conn, err := net.DialTimeout("tcp", target, dialTimeout)
		if err == nil {
			e.line("Socket connected to %s", target)
			return conn, nil
		}
		lastErr = err
	}

	if hint := reachabilityHint(lastErr); hint != "" {
		e.line("%s", hint)
	}
	return nil, apperr.New(apperr.SocketError, "cannot connect to "+addr, lastErr)
}

func (e *Engine) handshake(conn net.Conn, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// isAuthFailure rozpoznaje diagnostykę biblioteki dla odrzuconych
// metod uwierzytelnienia
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied")
}

// reachabilityHint tłumaczy klasy błędów gniazda na podpowiedź
func reachabilityHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "Host unreachable - check the network route."
	case errors.Is(err, syscall.ENETUNREACH):
		return "Network unreachable - is the link up?"
	case errors.Is(err, syscall.ECONNABORTED):
		return "Connection aborted - the link may have dropped."
	case errors.Is(err, syscall.ETIMEDOUT):
		return "Connection timed out - host may be down or filtered."
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused - is sshd listening on that port?"
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return "Connection timed out - host may be down or filtered."
	}
	return ""
}

// openShell otwiera kanał sesji, żąda pseudoterminala vt100 i startuje
// powłokę wraz z goroutyną czytającą. Każdy krok ma krótki limit czasu.
func (e *Engine) openShell(client *ssh.Client) error {
	e.setPhase(PhaseChannelOpening)

	sess, err := client.NewSession()
	if err != nil {
		return apperr.New(apperr.ProtocolError, "cannot open channel", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return apperr.New(apperr.ProtocolError, "cannot open stdin pipe", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return apperr.New(apperr.ProtocolError, "cannot open stdout pipe", err)
	}
	sess.Stderr = ingestWriter{e}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := await(channelTimeout, func() error {
		return sess.RequestPty("vt100", 24, 80, modes)
	}); err != nil {
		sess.Close()
		return apperr.New(apperr.ProtocolError, "pty request failed", err)
	}

	if err := await(channelTimeout, sess.Shell); err != nil {
		sess.Close()
		return apperr.New(apperr.ProtocolError, "shell request failed", err)
	}

	e.mu.Lock()
	e.sess = sess
	e.stdin = stdin
	e.mu.Unlock()

	go e.readLoop(stdout)
	return nil
}

// await ogranicza czas pojedynczego żądania na kanale
func await(limit time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(limit):
		return fmt.Errorf("no reply within %s", limit)
	}
}

// ingestWriter kieruje stderr sesji do bufora terminala
type ingestWriter struct{ e *Engine }

func (w ingestWriter) Write(p []byte) (int, error) {
	w.e.ingest(p)
	return len(p), nil
}

// ingest dopisuje bajty do bufora; przycięcie najstarszych danych
// zostawia ślad w transkrypcie
func (e *Engine) ingest(p []byte) {
	if e.buffer.Ingest(p) {
		e.line("%v", apperr.New(apperr.Overflow, "terminal overflow, oldest output dropped", nil))
	}
	if e.events.Output != nil {
		e.events.Output()
	}
}

// readLoop jest jedyną ścieżką naturalnego końca sesji: EOF lub błąd
// odczytu opróżnia bufor i rozbiera połączenie
func (e *Engine) readLoop(stdout io.Reader) {
	buf := make([]byte, readChunk)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			e.ingest(buf[:n])
		}
		if err != nil {
			if e.events.Output != nil {
				e.events.Output()
			}
			e.Disconnect()
			if e.events.Closed != nil {
				e.events.Closed(err)
			}
			return
		}
	}
}

// Send dopisuje znak nowej linii i zapisuje komendę do kanału.
// Chwilowe niepowodzenia są ponawiane w ramach budżetu; każdy postęp
// odnawia budżet. Wyczerpanie zostawia ostrzeżenie w transkrypcie,
// nigdy nie zrywa sesji.
func (e *Engine) Send(command string) error {
	e.mu.Lock()
	stdin := e.stdin
	connected := e.phase == PhaseConnected
	e.mu.Unlock()

	if !connected || stdin == nil {
		return apperr.New(apperr.SocketError, "not connected", nil)
	}

	data := append([]byte(command), '\n')
	written, err := writeAll(stdin, data)
	if err != nil {
		if apperr.IsType(err, apperr.WriteStalled) {
			e.line("Warning: partial write (%d of %d bytes)", written, len(data))
			return nil
		}
		return apperr.New(apperr.SocketError, "write failed", err)
	}
	return nil
}

// writeAll zapisuje całość z ograniczonym ponawianiem
func writeAll(w channelWriter, data []byte) (int, error) {
	budget := sendRetryBudget
	written := 0

	for written < len(data) {
		n, err := w.Write(data[written:])
		written += n
		if written >= len(data) {
			return written, nil
		}
		if n > 0 {
			budget = sendRetryBudget
			if err == nil {
				continue
			}
		}
		if err != nil && !isTryAgain(err) {
			return written, err
		}
		budget--
		if budget <= 0 {
			return written, apperr.New(apperr.WriteStalled, "write budget exhausted", err)
		}
		time.Sleep(sendRetryDelay)
	}
	return written, nil
}

func isTryAgain(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrTryAgain) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}

// Disconnect rozbiera sesję: kanał, klient, gniazdo, każde dokładnie raz.
// Wołanie w dowolnym stanie jest bezpieczne.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	teardown := e.teardown
	e.mu.Unlock()
	if teardown == nil {
		e.setPhase(PhaseDisconnected)
		return
	}

	teardown.Do(func() {
		e.mu.Lock()
		sess, client, conn, stdin := e.sess, e.client, e.conn, e.stdin
		e.sess, e.client, e.conn, e.stdin = nil, nil, nil, nil
		e.mu.Unlock()

		if stdin != nil {
			stdin.Close()
		}
		if sess != nil {
			sess.Close()
		}
		if client != nil {
			client.Close()
		} else if conn != nil {
			conn.Close()
		}

		e.setPhase(PhaseDisconnected)
	})
}
