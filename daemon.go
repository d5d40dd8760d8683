package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// scoreTimeout bounds one call to the scoring backend.
	scoreTimeout = 30 * time.Second

	defaultIdleTimeout = 5 * time.Minute
	pingTimeout        = time.Second
)

var errDaemonNotRunning = errors.New("not running")

// DaemonConfig holds daemon configuration.
type DaemonConfig struct {
	IdleTimeout time.Duration
	SocketPath  string
	PIDPath     string
}

// RiskEvaluator is the privileged operation the daemon serves.
type RiskEvaluator interface {
	Evaluate(ctx context.Context, prompt string) RiskResult
	Close() error
}

// Daemon is the privileged process. It owns the scoring credentials and
// answers risk queries over a Unix socket.
type Daemon struct {
	evaluator RiskEvaluator
	config    DaemonConfig

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewDaemon creates a daemon serving evaluator. A zero IdleTimeout means
// five minutes.
func NewDaemon(evaluator RiskEvaluator, config DaemonConfig) *Daemon {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaultIdleTimeout
	}
	return &Daemon{
		evaluator: evaluator,
		config:    config,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Run serves queries until SIGTERM/SIGINT, the idle timeout or Shutdown.
// In-flight queries are answered before it removes the socket and PID
// file and returns.
func (d *Daemon) Run() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}
	d.started = true
	d.mu.Unlock()
	defer close(d.stopped)
	defer d.evaluator.Close()

	ln, err := d.listen()
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var conns sync.WaitGroup
	activity := make(chan struct{}, 1)
	accepting := make(chan struct{})
	go func() {
		defer close(accepting)
		d.accept(ln, &conns, activity)
	}()

	d.waitForStop(sigCh, activity)

	// No Add can follow once the accept loop has returned.
	ln.Close()
	<-accepting
	conns.Wait()

	os.Remove(d.config.SocketPath)
	os.Remove(d.config.PIDPath)
	return nil
}

// Shutdown stops a running daemon and waits for Run to clean up.
func (d *Daemon) Shutdown() {
	d.stopOnce.Do(func() { close(d.stop) })

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if started {
		<-d.stopped
	}
}

func (d *Daemon) listen() (net.Listener, error) {
	socketPath := d.config.SocketPath
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if pingDaemon(socketPath, pingTimeout) == nil {
		return nil, fmt.Errorf("daemon already running at %s", socketPath)
	}
	os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	// Only this user may talk to the process holding the API key.
	if err := os.Chmod(socketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	if err := os.WriteFile(d.config.PIDPath, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		ln.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return ln, nil
}

func (d *Daemon) accept(ln net.Listener, conns *sync.WaitGroup, activity chan<- struct{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		select {
		case activity <- struct{}{}:
		default:
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			d.handleConnection(conn)
		}()
	}
}

func (d *Daemon) waitForStop(sigCh <-chan os.Signal, activity <-chan struct{}) {
	idle := time.NewTimer(d.config.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case <-activity:
			idle.Reset(d.config.IdleTimeout)
		case <-idle.C:
			return
		case <-sigCh:
			return
		case <-d.stop:
			return
		}
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(daemonDeadline))

	var q RiskQuery
	if err := json.NewDecoder(conn).Decode(&q); err != nil {
		logDecision("", "ALLOW", "daemon", "failed to decode query: "+err.Error())
		json.NewEncoder(conn).Encode(lowRisk())
		return
	}

	// Blank prompts are never scored; status checks rely on that.
	if strings.TrimSpace(q.Prompt) == "" {
		json.NewEncoder(conn).Encode(lowRisk())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
	defer cancel()
	json.NewEncoder(conn).Encode(d.evaluator.Evaluate(ctx, q.Prompt))
}

// pingDaemon sends a blank query and succeeds if a daemon answers it.
func pingDaemon(socketPath string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := sendDaemonRequest(ctx, socketPath, RiskQuery{RequestID: "ping"})
	return err
}

// --- Control commands ---

// daemonStatus reports on w whether a daemon answers on the socket.
func daemonStatus(w io.Writer, cfg DaemonConfig) error {
	pid, pidErr := readPIDFile(cfg.PIDPath)
	if err := pingDaemon(cfg.SocketPath, pingTimeout); err != nil {
		if pidErr == nil && processAlive(pid) {
			return fmt.Errorf("process %d alive but not answering: %w", pid, err)
		}
		removeDaemonFiles(cfg)
		return errDaemonNotRunning
	}

	if pidErr != nil {
		fmt.Fprintln(w, "running")
		return nil
	}
	fmt.Fprintf(w, "running (PID %d)\n", pid)
	return nil
}

// daemonStop sends SIGTERM to the daemon and waits for its socket to go.
// Stopping a daemon that is not running is not an error.
func daemonStop(w io.Writer, cfg DaemonConfig) error {
	pid, err := readPIDFile(cfg.PIDPath)
	if err != nil || !processAlive(pid) {
		removeDaemonFiles(cfg)
		fmt.Fprintln(w, errDaemonNotRunning)
		return nil
	}

	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	if !waitUntil(2*time.Second, func() bool { return !fileExists(cfg.SocketPath) }) {
		return fmt.Errorf("sent SIGTERM to %d but %s still exists", pid, cfg.SocketPath)
	}
	fmt.Fprintf(w, "stopped (PID %d)\n", pid)
	return nil
}

func daemonRestart(w io.Writer, cfg DaemonConfig) error {
	if err := daemonStop(w, cfg); err != nil {
		return err
	}
	if err := startDaemonProcess(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if !waitUntil(2*time.Second, func() bool { return pingDaemon(cfg.SocketPath, 100*time.Millisecond) == nil }) {
		return errors.New("started but not answering yet")
	}
	fmt.Fprintln(w, "restarted")
	return nil
}

func removeDaemonFiles(cfg DaemonConfig) {
	os.Remove(cfg.PIDPath)
	os.Remove(cfg.SocketPath)
}

func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cond()
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("bad pid file %s", path)
	}
	return pid, nil
}

func signalProcess(pid int, sig os.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(sig)
}

func processAlive(pid int) bool {
	return signalProcess(pid, syscall.Signal(0)) == nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// runDaemon is the top-level entry point for `orcho-risk-guard daemon`.
func runDaemon() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
	scorer, err := cfg.NewScorer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}

	d := NewDaemon(NewRiskClient(scorer), cfg.DaemonConfig())
	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}
