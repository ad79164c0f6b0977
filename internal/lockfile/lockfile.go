// Package lockfile implements spec §4.10: single-process-per-bot-token
// enforcement via a flock'd file in a per-user state directory. The OS
// releases a flock when its holding process dies, which gives "steal the
// lock if the PID is dead" for free instead of requiring a manual
// liveness poll.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/takopierr"
	"golang.org/x/sys/unix"
)

// FingerprintLen is the length, in hex characters, of a token fingerprint.
const FingerprintLen = 10

// Fingerprint returns the first FingerprintLen hex characters of
// SHA-256(botToken), per spec §4.10/§6.
func Fingerprint(botToken string) string {
	sum := sha256.Sum256([]byte(botToken))
	return hex.EncodeToString(sum[:])[:FingerprintLen]
}

// Handle is a held file lock (model.LockHandle plus the open file needed
// to release it).
type Handle struct {
	model.LockHandle
	file *os.File
	path string
}

// Acquire opens (creating if necessary) the lock file for botToken's
// fingerprint under dir, and takes an exclusive, non-blocking flock on it.
// If the lock is already held by a live process, returns
// *takopierr.AlreadyRunning wrapping takopierr.ErrAlreadyRunning. If the
// holding process is dead, the OS has already released its flock, so this
// call simply steals it.
func Acquire(dir, botToken string) (*Handle, error) {
	fingerprint := Fingerprint(botToken)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create lock dir: %v", takopierr.ErrConfig, err)
	}

	path := filepath.Join(dir, fingerprint+".lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %v", takopierr.ErrConfig, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		existingPID := readExistingPID(file)
		_ = file.Close()
		return nil, &takopierr.AlreadyRunning{PID: existingPID}
	}

	h := &Handle{
		LockHandle: model.LockHandle{PID: os.Getpid(), TokenFingerprint: fingerprint},
		file:       file,
		path:       path,
	}
	if err := h.writeRecord(); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
		return nil, err
	}
	return h, nil
}

type lockRecord struct {
	PID              int    `json:"pid"`
	TokenFingerprint string `json:"token_fingerprint"`
}

func (h *Handle) writeRecord() error {
	data, err := json.Marshal(lockRecord{PID: h.PID, TokenFingerprint: h.TokenFingerprint})
	if err != nil {
		return fmt.Errorf("%w: encode lock record: %v", takopierr.ErrConfig, err)
	}
	if err := h.file.Truncate(0); err != nil {
		return err
	}
	if _, err := h.file.WriteAt(data, 0); err != nil {
		return err
	}
	return h.file.Sync()
}

func readExistingPID(file *os.File) int {
	var rec lockRecord
	data := make([]byte, 4096)
	n, err := file.ReadAt(data, 0)
	if err != nil && n == 0 {
		return 0
	}
	if err := json.Unmarshal(data[:n], &rec); err != nil {
		return 0
	}
	return rec.PID
}

// Release drops the flock and closes the file. Safe to call on all exit
// paths; calling it more than once is a no-op.
func (h *Handle) Release() {
	if h == nil || h.file == nil {
		return
	}
	_ = unix.Flock(int(h.file.Fd()), unix.LOCK_UN)
	_ = h.file.Close()
	h.file = nil
}
