package autostart

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"fetchrelay/internal/util"
)

const unitTemplate = `[Unit]
Description=fetchrelay transfer daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart={{.Command}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type LinuxAutoStarter struct{}

func (l *LinuxAutoStarter) unitPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(home, ".config", "systemd", "user")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, serviceName+".service"), nil
}

func renderUnit(execPath, configPath string) ([]byte, error) {
	cmdline := quoteArgs(append([]string{execPath}, serveArgs(configPath)...))

	var buf bytes.Buffer
	tmpl := template.Must(template.New("unit").Parse(unitTemplate))
	if err := tmpl.Execute(&buf, map[string]string{"Command": cmdline}); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}

	return buf.Bytes(), nil
}

func (l *LinuxAutoStarter) Install(execPath, configPath string) error {
	path, err := l.unitPath()
	if err != nil {
		return err
	}

	unit, err := renderUnit(execPath, configPath)
	if err != nil {
		return err
	}

	if err := util.AtomicWrite(path, bytes.NewReader(unit), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", serviceName + ".service"},
		{"systemctl", "--user", "start", serviceName + ".service"},
	}

	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

func (l *LinuxAutoStarter) Uninstall() error {
	cmds := [][]string{
		{"systemctl", "--user", "stop", serviceName + ".service"},
		{"systemctl", "--user", "disable", serviceName + ".service"},
	}

	for _, args := range cmds {
		_ = exec.Command(args[0], args[1:]...).Run()
	}

	path, err := l.unitPath()
	if err != nil {
		return err
	}

	return util.RemoveIfExists(path)
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.unitPath()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	return err == nil, nil
}
