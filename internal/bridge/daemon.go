package bridge

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// daemonEnv marks a re-exec'd child as already detached, so it does not
// try to daemonize itself again.
const daemonEnv = "LINEPROTO_GATEWAY_DAEMONIZED=1"

// Daemonize re-execs the current process detached from its controlling
// terminal, redirecting stdio to /dev/null, and exits the parent. Go
// has no raw fork(2), so re-exec with Setsid stands in for a classic
// double fork. A no-op (returns immediately, running in the foreground)
// if already daemonized or on the second call after re-exec.
func Daemonize() error {
	if os.Getenv("LINEPROTO_GATEWAY_DAEMONIZED") == "1" {
		return nil
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: open /dev/null: %w", err)
	}
	defer devNull.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemonize: resolve executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: start detached child: %w", err)
	}
	os.Exit(0)
	return nil
}
