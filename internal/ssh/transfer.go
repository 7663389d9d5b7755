// internal/ssh/transfer.go

package ssh

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
)

// TransferProgress reprezentuje postęp transferu pliku
type TransferProgress struct {
	FileName         string
	TotalBytes       int64
	TransferredBytes int64
	StartTime        time.Time
}

// Transfer kopiuje pliki po ustanowionej sesji SSH. Każda operacja
// otwiera własny podsystem SFTP i zamyka go po zakończeniu.
type Transfer struct {
	engine *Engine
}

func NewTransfer(engine *Engine) *Transfer {
	return &Transfer{engine: engine}
}

func (t *Transfer) open() (*sftp.Client, error) {
	client := t.engine.Client()
	if client == nil || !t.engine.Connected() {
		return nil, fmt.Errorf("not connected")
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create SFTP client: %v", err)
	}
	return sftpClient, nil
}

// Fetch kopiuje zdalny plik do lokalnego katalogu
func (t *Transfer) Fetch(remotePath, localDir string, progress func(TransferProgress)) error {
	sftpClient, err := t.open()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	srcFile, err := sftpClient.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %v", err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %v", err)
	}

	localPath := filepath.Join(localDir, path.Base(remotePath))
	dstFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %v", err)
	}
	defer dstFile.Close()

	if err := copyWithProgress(dstFile, srcFile, path.Base(remotePath), info.Size(), progress); err != nil {
		os.Remove(localPath)
		return err
	}
	return dstFile.Sync()
}

// Push kopiuje lokalny plik na serwer; ścieżka kończąca się '/'
// oznacza katalog docelowy
func (t *Transfer) Push(localPath, remotePath string, progress func(TransferProgress)) error {
	sftpClient, err := t.open()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	srcFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %v", err)
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file info: %v", err)
	}

	if remotePath == "" || remotePath[len(remotePath)-1] == '/' {
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	}

	dstFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %v", err)
	}
	defer dstFile.Close()

	return copyWithProgress(dstFile, srcFile, filepath.Base(localPath), info.Size(), progress)
}

// RemoteStat zwraca informacje o zdalnym pliku
func (t *Transfer) RemoteStat(remotePath string) (os.FileInfo, error) {
	sftpClient, err := t.open()
	if err != nil {
		return nil, err
	}
	defer sftpClient.Close()

	return sftpClient.Stat(remotePath)
}

func copyWithProgress(dst io.Writer, src io.Reader, name string, total int64, progress func(TransferProgress)) error {
	state := TransferProgress{
		FileName:   name,
		TotalBytes: total,
		StartTime:  time.Now(),
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			if writeErr != nil {
				return fmt.Errorf("error writing file: %v", writeErr)
			}
			if written != n {
				return fmt.Errorf("incomplete write: wrote %d bytes instead of %d", written, n)
			}

			state.TransferredBytes += int64(n)
			if progress != nil {
				progress(state)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading file: %v", err)
		}
	}

	if progress != nil {
		progress(state)
	}
	return nil
}
