// Package service registers the daemon with the OS service manager: a
// launchd agent on darwin, a systemd user unit on linux and an SCM service
// on windows. All three are driven through the platform's own control tool.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Name is the service identifier used with systemd and sc.
const Name = "autoportal"

// launchdLabel is the reverse-DNS label launchd expects.
const launchdLabel = "com.user.autoportal"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>run</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`

const unitTemplate = `[Unit]
Description=Auto Captive Portal Login Service

[Service]
ExecStart=%s run
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`

// Manager installs and controls the OS service for one executable.
type Manager struct {
	execPath string
}

// NewManager creates a manager for the given executable path.
func NewManager(execPath string) *Manager {
	return &Manager{execPath: execPath}
}

// Install registers the daemon with the OS service manager and starts it.
func (m *Manager) Install() error {
	switch runtime.GOOS {
	case "darwin":
		return m.installLaunchd()
	case "linux":
		return m.installSystemd()
	case "windows":
		return m.installWindows()
	default:
		return fmt.Errorf("service install not supported on %s", runtime.GOOS)
	}
}

// Uninstall removes the service registration.
func (m *Manager) Uninstall() error {
	switch runtime.GOOS {
	case "darwin":
		path, err := plistPath()
		if err != nil {
			return err
		}
		_ = run("launchctl", "unload", path)
		return os.Remove(path)
	case "linux":
		_ = run("systemctl", "--user", "stop", Name)
		_ = run("systemctl", "--user", "disable", Name)
		path, err := unitPath()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return run("systemctl", "--user", "daemon-reload")
	case "windows":
		_ = run("sc", "stop", Name)
		return run("sc", "delete", Name)
	default:
		return fmt.Errorf("service uninstall not supported on %s", runtime.GOOS)
	}
}

// Start starts the installed service.
func (m *Manager) Start() error {
	switch runtime.GOOS {
	case "darwin":
		path, err := plistPath()
		if err != nil {
			return err
		}
		return run("launchctl", "load", path)
	case "linux":
		return run("systemctl", "--user", "start", Name)
	case "windows":
		return run("sc", "start", Name)
	default:
		return fmt.Errorf("service start not supported on %s", runtime.GOOS)
	}
}

// Stop stops the running service.
func (m *Manager) Stop() error {
	switch runtime.GOOS {
	case "darwin":
		path, err := plistPath()
		if err != nil {
			return err
		}
		return run("launchctl", "unload", path)
	case "linux":
		return run("systemctl", "--user", "stop", Name)
	case "windows":
		return run("sc", "stop", Name)
	default:
		return fmt.Errorf("service stop not supported on %s", runtime.GOOS)
	}
}

// Status reports whether the service is running, with a short state string
// for the status command.
func (m *Manager) Status() (bool, string) {
	switch runtime.GOOS {
	case "darwin":
		out, err := exec.Command("launchctl", "list", launchdLabel).Output()
		if err != nil {
			return false, "Not Running"
		}
		s := string(out)
		if strings.Contains(s, "PID") && !strings.Contains(s, `"PID" = 0`) {
			return true, "Running"
		}
		return false, "Not Running"
	case "linux":
		out, err := exec.Command("systemctl", "--user", "is-active", Name).Output()
		state := strings.TrimSpace(string(out))
		if err == nil && state == "active" {
			return true, "Running"
		}
		if state == "" {
			state = "Not Running"
		}
		return false, state
	case "windows":
		out, err := exec.Command("sc", "query", Name).Output()
		if err != nil {
			return false, "Not Installed"
		}
		s := string(out)
		switch {
		case strings.Contains(s, "RUNNING"):
			return true, "Running"
		case strings.Contains(s, "STOPPED"):
			return false, "Stopped"
		default:
			return false, "Unknown"
		}
	default:
		return false, "Unsupported"
	}
}

func (m *Manager) installLaunchd() error {
	path, err := plistPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure launch agents directory: %w", err)
	}
	content := fmt.Sprintf(plistTemplate, launchdLabel, m.execPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	return run("launchctl", "load", path)
}

func (m *Manager) installSystemd() error {
	path, err := unitPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure systemd user directory: %w", err)
	}
	content := fmt.Sprintf(unitTemplate, m.execPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write unit: %w", err)
	}
	if err := run("systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	if err := run("systemctl", "--user", "enable", Name); err != nil {
		return err
	}
	return run("systemctl", "--user", "start", Name)
}

func (m *Manager) installWindows() error {
	binPath := fmt.Sprintf("%s run", m.execPath)
	if err := run("sc", "create", Name, "binPath=", binPath, "start=", "auto",
		"DisplayName=", "Auto Captive Portal"); err != nil {
		return err
	}
	return run("sc", "start", Name)
}

func plistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory not found: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
}

func unitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory not found: %w", err)
	}
	return filepath.Join(home, ".config", "systemd", "user", Name+".service"), nil
}

func run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %v: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
