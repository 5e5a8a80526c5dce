package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sevlyar/go-daemon"
)

// DaemonEnvVar marks the detached child process.
const DaemonEnvVar = "MIDDLECLICK_DAEMON_CHILD"

// PidFile returns where the detached daemon records its pid.
func PidFile() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "middleclick.pid")
}

// Daemonize detaches the process, sending its output to logFile.
// In the parent it returns the child process. In the child it returns a nil
// process and a release func that removes the pid file.
func Daemonize(logFile string) (*os.Process, func() error, error) {
	ctx := &daemon.Context{
		PidFileName: PidFile(),
		PidFilePerm: 0o644,
		LogFileName: logFile,
		LogFilePerm: 0o640,
		WorkDir:     "/",
		Umask:       0o27,
		Args:        os.Args,
		Env:         append(os.Environ(), fmt.Sprintf("%s=1", DaemonEnvVar)),
	}

	child, err := ctx.Reborn()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to daemonize: %w", err)
	}
	return child, ctx.Release, nil
}

// IsChild reports whether this is the detached daemon process.
func IsChild() bool {
	return os.Getenv(DaemonEnvVar) == "1"
}

// RunningDaemon returns the detached daemon recorded in the pid file.
func RunningDaemon() (*os.Process, error) {
	pid, err := daemon.ReadPidFile(PidFile())
	if err != nil {
		return nil, fmt.Errorf("no running daemon: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("daemon pid %d: %w", pid, err)
	}
	return proc, nil
}
