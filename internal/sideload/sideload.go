// internal/sideload/sideload.go

package sideload

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pocketssh/internal/apperr"
	"pocketssh/internal/storage"
)

// Protokół liniowy zrzutu plików:
//
//	BEGIN <rozmiar> <crc32hex>
//	DATA <bajty hex>
//	END
//	ABORT
//
// Nazwę docelową ustawia się przed transferem (SetTarget); BEGIN może
// ją też podać jako dodatkowy pierwszy argument. Plik z niezgodną sumą
// lub rozmiarem jest usuwany z nośnika.

const progressStep = 10

// Progress jest wołany przy każdym pełnym kroku postępu
type Progress func(percent int, received, total int64)

type Receiver struct {
	storage *storage.Store
	target  string

	file        *os.File
	path        string
	name        string
	size        int64
	received    int64
	wantCRC     uint32
	crc         hash.Hash32
	lastPercent int
	progress    Progress
}

func NewReceiver(st *storage.Store, progress Progress) *Receiver {
	return &Receiver{storage: st, progress: progress}
}

// Active mówi, czy trwa transfer rozpoczęty przez BEGIN
func (r *Receiver) Active() bool {
	return r.file != nil
}

func (r *Receiver) Name() string {
	return r.name
}

// SetTarget ustawia nazwę docelową dla nadchodzącego BEGIN
func (r *Receiver) SetTarget(name string) {
	r.target = name
}

// HandleLine przetwarza jedną linię protokołu. done=true oznacza
// zakończenie transferu (END lub ABORT).
func (r *Receiver) HandleLine(line string) (done bool, err error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToUpper(fields[0]) {
	case "BEGIN":
		return false, r.begin(fields[1:])
	case "DATA":
		if len(fields) < 2 {
			return false, r.fail("DATA line without payload")
		}
		return false, r.data(fields[1])
	case "END":
		return true, r.end()
	case "ABORT":
		r.discard()
		return true, nil
	default:
		return false, r.fail("unknown directive " + fields[0])
	}
}

func (r *Receiver) begin(args []string) error {
	if r.file != nil {
		r.discard()
	}

	name := r.target
	switch len(args) {
	case 2:
	case 3:
		name = args[0]
		args = args[1:]
	default:
		return apperr.New(apperr.ProtocolError, "BEGIN wants size and crc32", nil)
	}

	name = filepath.Base(name)
	if name == "" || name == "." || name == ".." {
		return apperr.New(apperr.ProtocolError, "no target file name", nil)
	}

	size, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || size < 0 {
		return apperr.New(apperr.ProtocolError, "bad size in BEGIN", nil)
	}

	want, err := strconv.ParseUint(args[1], 16, 32)
	if err != nil {
		return apperr.New(apperr.ProtocolError, "bad crc32 in BEGIN", nil)
	}

	root, err := r.storage.FirstRoot()
	if err != nil {
		return apperr.New(apperr.ProtocolError, "no writable storage root", err)
	}

	path := filepath.Join(root, name)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return apperr.New(apperr.ProtocolError, "cannot create "+name, err)
	}

	r.file = file
	r.path = path
	r.name = name
	r.size = size
	r.received = 0
	r.wantCRC = uint32(want)
	r.crc = crc32.NewIEEE()
	r.lastPercent = -1
	r.report()
	return nil
}

func (r *Receiver) data(payload string) error {
	if r.file == nil {
		return apperr.New(apperr.ProtocolError, "DATA before BEGIN", nil)
	}

	chunk, err := hex.DecodeString(payload)
	if err != nil {
		return r.fail("bad hex payload")
	}

	if _, err := r.file.Write(chunk); err != nil {
		r.discard()
		return apperr.New(apperr.ProtocolError, "write failed", err)
	}
	r.crc.Write(chunk)
	r.received += int64(len(chunk))
	r.report()
	return nil
}

func (r *Receiver) end() error {
	if r.file == nil {
		return apperr.New(apperr.ProtocolError, "END before BEGIN", nil)
	}

	err := r.file.Close()
	r.file = nil
	if err != nil {
		os.Remove(r.path)
		return apperr.New(apperr.ProtocolError, "close failed", err)
	}

	if r.received != r.size {
		os.Remove(r.path)
		return apperr.New(apperr.ProtocolError,
			fmt.Sprintf("size mismatch: got %d, want %d", r.received, r.size), nil)
	}
	if got := r.crc.Sum32(); got != r.wantCRC {
		os.Remove(r.path)
		return apperr.New(apperr.ProtocolError,
			fmt.Sprintf("crc mismatch: got %08x, want %08x", got, r.wantCRC), nil)
	}

	if r.progress != nil {
		r.progress(100, r.received, r.size)
	}
	return nil
}

// discard przerywa transfer i usuwa częściowy plik
func (r *Receiver) discard() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
		os.Remove(r.path)
	}
}

func (r *Receiver) fail(message string) error {
	r.discard()
	return apperr.New(apperr.ProtocolError, message, nil)
}

// report woła callback co pełny krok postępu
func (r *Receiver) report() {
	if r.progress == nil || r.size <= 0 {
		return
	}
	percent := int(r.received * 100 / r.size)
	if percent > 100 {
		percent = 100
	}
	if r.lastPercent < 0 || percent-r.lastPercent >= progressStep {
		r.lastPercent = percent
		r.progress(percent, r.received, r.size)
	}
}

// Pump czyta linie protokołu ze strumienia aż do END lub ABORT
func (r *Receiver) Pump(source io.Reader) error {
	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		done, err := r.HandleLine(scanner.Text())
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	r.discard()
	return apperr.New(apperr.ProtocolError, "stream ended before END", nil)
}
