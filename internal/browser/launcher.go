// Package browser starts a local Chromium with remote debugging enabled so
// the relay has a DevTools endpoint to attach to.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNoBrowser is returned when no Chrome or Chromium binary is on PATH.
var ErrNoBrowser = errors.New("browser: no chromium-compatible binary found")

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	// StartURL is opened in the first tab, normally the LiveView app.
	StartURL   string
	ProfileDir string
	WindowSize string
	// ReadyTimeout bounds the wait for /json/version to answer.
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

// Launcher owns a browser process spawned for the relay.
type Launcher struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1440,900"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{cfg: cfg, logger: logger.With("component", "browser")}
}

var candidates = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

func detectBrowser() (string, error) {
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", ErrNoBrowser
}

func (l *Launcher) endpoint() string {
	return net.JoinHostPort(l.cfg.CDPAddress, strconv.Itoa(l.cfg.CDPPort))
}

func endpointListening(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (l *Launcher) args() []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(l.cfg.CDPPort),
		"--remote-debugging-address=" + l.cfg.CDPAddress,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--window-size=" + l.cfg.WindowSize,
	}
	if l.cfg.ProfileDir != "" {
		args = append(args, "--user-data-dir="+l.cfg.ProfileDir)
	}
	if l.cfg.StartURL != "" {
		args = append(args, l.cfg.StartURL)
	}
	return args
}

// Launch starts the browser unless something already listens on the CDP
// endpoint, then waits until DevTools answers.
func (l *Launcher) Launch(ctx context.Context) error {
	if endpointListening(l.endpoint()) {
		l.logger.Info("CDP endpoint already listening, skipping launch", "addr", l.endpoint())
		return nil
	}

	path, err := detectBrowser()
	if err != nil {
		return err
	}
	if l.cfg.ProfileDir != "" {
		if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
			return fmt.Errorf("browser: create profile dir: %w", err)
		}
	}

	cmd := exec.Command(path, l.args()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: start %s: %w", path, err)
	}
	l.mu.Lock()
	l.cmd = cmd
	l.mu.Unlock()
	l.logger.Info("browser process started", "path", path, "pid", cmd.Process.Pid)

	if err := l.waitReady(ctx); err != nil {
		l.Stop()
		return fmt.Errorf("browser: waiting for CDP: %w", err)
	}
	l.logger.Info("CDP endpoint ready", "addr", l.endpoint())
	return nil
}

func (l *Launcher) waitReady(ctx context.Context) error {
	url := "http://" + l.endpoint() + "/json/version"
	client := &http.Client{Timeout: time.Second}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.ReadyTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d from %s", resp.StatusCode, url)
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// Running reports whether this launcher spawned a browser that has not
// been stopped.
func (l *Launcher) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmd != nil
}

// Stop terminates the spawned browser with SIGTERM, then SIGKILL after 5s.
func (l *Launcher) Stop() {
	l.mu.Lock()
	cmd := l.cmd
	l.cmd = nil
	l.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	l.logger.Info("stopping browser", "pid", cmd.Process.Pid)
	_ = cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		l.logger.Warn("browser did not exit, sending SIGKILL")
		_ = cmd.Process.Kill()
		<-done
	}
}
