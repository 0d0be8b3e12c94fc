package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// spawnSocketpair creates a connected Unix socket pair, spawns the
// sweeper with the remote end inherited as an open descriptor passed
// via --io-socket <fd>, closes the remote end in this process, and
// returns the local end wrapped as a net.Conn (spec.md §4.4's
// "inherited socket pair" mode).
func spawnSocketpair(ctx context.Context, cfg Config, logger *slog.Logger) (*Bridge, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socketpair: %w", err)
	}
	localFD, remoteFD := fds[0], fds[1]

	localFile := os.NewFile(uintptr(localFD), "sweep-io-local")
	conn, err := net.FileConn(localFile)
	localFile.Close()
	if err != nil {
		unix.Close(remoteFD)
		return nil, fmt.Errorf("transport: wrap local socket: %w", err)
	}

	remoteFile := os.NewFile(uintptr(remoteFD), "sweep-io-remote")

	// The child's stdin/stdout/stderr occupy fds 0-2; the first
	// ExtraFiles entry becomes fd 3 in the child.
	const childFD = 3
	cmd := buildCmd(ctx, cfg.Argv, []string{"--io-socket", fmt.Sprintf("%d", childFD)}, cfg.Env)
	cmd.ExtraFiles = []*os.File{remoteFile}

	logger.Info("starting sweeper subprocess", "argv", cfg.Argv, "mode", "socketpair")
	if err := cmd.Start(); err != nil {
		conn.Close()
		remoteFile.Close()
		return nil, fmt.Errorf("transport: start sweeper: %w", err)
	}
	remoteFile.Close()

	logger.Info("sweeper subprocess started", "pid", cmd.Process.Pid)
	return &Bridge{Conn: conn, cmd: cmd, logger: logger}, nil
}
