package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// x11SocketDir is where an X server listens on display :N as XN.
const x11SocketDir = "/tmp/.X11-unix"

// displaySocket returns the socket path of display (":99" or ":99.0").
func displaySocket(display string) string {
	n := strings.TrimPrefix(display, ":")
	if i := strings.IndexByte(n, '.'); i >= 0 {
		n = n[:i]
	}
	return filepath.Join(x11SocketDir, "X"+n)
}

// waitSocket polls for path until it exists or d elapses.
func waitSocket(path string, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if _, err := os.Stat(path); err == nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// startXvfb starts a virtual screen sized like the Chrome window, for
// headful runs on a machine without a display.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	screen := fmt.Sprintf("%dx%dx24", m.cfg.WindowWidth, m.cfg.WindowHeight)
	cmd := exec.Command("Xvfb", display, "-screen", "0", screen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb on %s: %w", display, err)
	}
	m.xvfb = cmd

	if !waitSocket(displaySocket(display), 3*time.Second) {
		m.cfg.Logger.Warn("browser: xvfb socket not seen, continuing", "display", display)
	}
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "screen", screen, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		if err := p.Kill(); err != nil {
			m.cfg.Logger.Debug("browser: xvfb kill", "error", err)
		}
		_ = m.xvfb.Wait()
	}
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
	m.xvfb = nil
}
