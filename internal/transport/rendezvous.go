package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// spawnRendezvous creates a filesystem Unix socket in a per-process
// temp path, spawns the sweeper with its path via --io-socket <path>,
// accepts exactly one connection, and unlinks the socket immediately
// after accept (spec.md §4.4's "filesystem rendezvous" mode).
//
// The path mixes the pid (per spec.md §9: "compute it from the PID")
// with a short uuid suffix so a rapid respawn of a process that
// reused the same pid can't collide with a socket from a still-
// draining previous instance.
func spawnRendezvous(ctx context.Context, cfg Config, logger *slog.Logger) (*Bridge, error) {
	dir := cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("sweep-io-%d-%s.socket", os.Getpid(), uuid.NewString()[:8]))

	_ = os.Remove(path) // stale socket from a prior crash, best-effort
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: listen on %s: %w", path, err)
	}

	cmd := buildCmd(ctx, cfg.Argv, []string{"--io-socket", path}, cfg.Env)

	logger.Info("starting sweeper subprocess", "argv", cfg.Argv, "mode", "rendezvous", "socket", path)
	if err := cmd.Start(); err != nil {
		listener.Close()
		os.Remove(path)
		return nil, fmt.Errorf("transport: start sweeper: %w", err)
	}

	acceptDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-acceptDone:
		}
	}()

	conn, err := listener.Accept()
	close(acceptDone)
	listener.Close()
	os.Remove(path)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("transport: accept sweeper connection: %w", err)
	}

	logger.Info("sweeper subprocess started", "pid", cmd.Process.Pid)
	return &Bridge{Conn: conn, cmd: cmd, logger: logger}, nil
}
