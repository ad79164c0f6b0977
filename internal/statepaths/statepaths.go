// Package statepaths resolves takopi's per-user state directory and
// guards against it having been tampered with (wrong owner, symlinked
// elsewhere) before anything is written into it.
package statepaths

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"
)

const defaultStateDirName = "takopi"

// StateDir resolves the root state directory: the "state_dir" config key
// if set, else "$XDG_STATE_HOME/takopi", else "~/.local/state/takopi".
func StateDir() string {
	if dir := viper.GetString("state_dir"); dir != "" {
		return expandHome(dir)
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, defaultStateDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), defaultStateDirName)
	}
	return filepath.Join(home, ".local", "state", defaultStateDirName)
}

// LocksDir is where the Lockfile component keeps its per-bot-token lock
// files.
func LocksDir() string { return filepath.Join(StateDir(), "locks") }

func expandHome(path string) string {
	if path == "~" || (len(path) >= 2 && path[:2] == "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureSecureDir creates dir (and its parents) at 0700 if missing, then
// verifies it is a real directory owned by the current user rather than a
// symlink or a directory some other party planted, tightening permissions
// to 0700 if they were ever loosened.
func EnsureSecureDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("statepaths: resolve %s: %w", dir, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return fmt.Errorf("statepaths: create %s: %w", abs, err)
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return fmt.Errorf("statepaths: stat %s: %w", abs, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("statepaths: %s is a symlink, refusing to use it", abs)
	}
	if !info.IsDir() {
		return fmt.Errorf("statepaths: %s is not a directory", abs)
	}

	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(sys.Uid) != os.Getuid() {
			return fmt.Errorf("statepaths: %s is owned by uid %d, not the current user", abs, sys.Uid)
		}
	}

	if info.Mode().Perm() != 0o700 {
		if err := os.Chmod(abs, 0o700); err != nil {
			return fmt.Errorf("statepaths: chmod %s: %w", abs, err)
		}
	}
	return nil
}
