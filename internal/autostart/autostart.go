// Package autostart provides auto-start functionality.
package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const (
	appName = "animcancel"
	label   = "com.animcancel.agent"
)

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>ProcessType</key>
    <string>Interactive</string>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=animcancel
Comment=Repeat click and cancel keys while a trigger is held
Exec={{.ExecutablePath}}{{range .Args}} {{.}}{{end}}
Terminal=false
Categories=Utility;
X-GNOME-Autostart-enabled=true
`

type entry struct {
	Label          string
	ExecutablePath string
	Args           []string
}

// Enable registers the current executable, started with args, to run on login.
func Enable(args ...string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	e := entry{Label: label, ExecutablePath: execPath, Args: args}

	switch runtime.GOOS {
	case "darwin":
		path, err := macPlistPath()
		if err != nil {
			return err
		}
		return writeTemplate(path, macLaunchAgentPlist, e)
	case "windows":
		return enableWindows(commandLine(e))
	case "linux":
		path, err := xdgDesktopPath()
		if err != nil {
			return err
		}
		return writeTemplate(path, xdgDesktopEntry, e)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// Disable removes the login entry
func Disable() error {
	switch runtime.GOOS {
	case "darwin":
		path, err := macPlistPath()
		if err != nil {
			return err
		}
		return removeIfExists(path)
	case "windows":
		return disableWindows()
	case "linux":
		path, err := xdgDesktopPath()
		if err != nil {
			return err
		}
		return removeIfExists(path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	switch runtime.GOOS {
	case "darwin":
		path, err := macPlistPath()
		return err == nil && exists(path)
	case "windows":
		return isEnabledWindows()
	case "linux":
		path, err := xdgDesktopPath()
		return err == nil && exists(path)
	default:
		return false
	}
}

func macPlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), nil
}

func xdgDesktopPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "autostart", appName+".desktop"), nil
}

func writeTemplate(path, text string, e entry) error {
	tmpl, err := template.New(filepath.Base(path)).Parse(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, e); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// commandLine quotes the executable for the registry Run value
func commandLine(e entry) string {
	parts := []string{`"` + e.ExecutablePath + `"`}
	for _, a := range e.Args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
