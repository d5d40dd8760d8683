package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"
)

// daemonDeadline is slightly more than the daemon's own scoring timeout.
const daemonDeadline = 35 * time.Second

// DaemonForwarder forwards risk queries to the privileged daemon over its
// Unix socket, auto-starting the daemon if nothing is listening.
type DaemonForwarder struct {
	SocketPath string // override for testing; empty = default
	AutoStart  bool
}

func (f *DaemonForwarder) socketPath() string {
	if f.SocketPath != "" {
		return f.SocketPath
	}
	return defaultSocketPath()
}

// Forward implements Forwarder.
func (f *DaemonForwarder) Forward(ctx context.Context, q RiskQuery) (RiskResult, error) {
	socketPath := f.socketPath()

	// Try connecting to existing daemon
	resp, err := sendDaemonRequest(ctx, socketPath, q)
	if err == nil {
		return *resp, nil
	}
	if !f.AutoStart {
		return RiskResult{}, err
	}

	// Connection failed, try starting the daemon
	if startErr := startDaemonProcess(); startErr != nil {
		return RiskResult{}, fmt.Errorf("failed to start daemon: %w", startErr)
	}

	// Retry with backoff (wait up to 2s for daemon to start)
	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return RiskResult{}, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		resp, err = sendDaemonRequest(ctx, socketPath, q)
		if err == nil {
			return *resp, nil
		}
	}

	return RiskResult{}, fmt.Errorf("daemon not available after retries: %w", err)
}

// sendDaemonRequest sends a single query to the daemon and reads the result.
func sendDaemonRequest(ctx context.Context, socketPath string, q RiskQuery) (*RiskResult, error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(daemonDeadline)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	// Unblock the read below as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(q); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var resp RiskResult
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("decode result: %w", err)
	}

	return &resp, nil
}

// startDaemonProcess starts the daemon as a background process.
func startDaemonProcess() error {
	exePath, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exePath, "daemon")
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	return cmd.Start()
}
