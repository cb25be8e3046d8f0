// Package systemd renders the service unit that keeps the monitor
// daemon running across reboots.
package systemd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UnitPath is where Install writes the service unit.
const UnitPath = "/etc/systemd/system/filesentry.service"

// UnitParams fills the service template.
type UnitParams struct {
	BinaryPath string
	ConfigPath string
	StateDir   string
	DBPath     string
	Addr       string
	User       string
}

// Unit renders the systemd service unit for the daemon.
func Unit(p UnitParams) string {
	var b strings.Builder
	b.WriteString("[Unit]\n")
	b.WriteString("Description=filesentry file activity monitor\n")
	b.WriteString("After=local-fs.target\n\n")

	b.WriteString("[Service]\n")
	b.WriteString("Type=simple\n")
	fmt.Fprintf(&b, "ExecStart=%s run --config %s --state-dir %s --db %s --addr %s\n",
		p.BinaryPath, p.ConfigPath, p.StateDir, p.DBPath, p.Addr)
	if p.User != "" {
		fmt.Fprintf(&b, "User=%s\n", p.User)
	}
	b.WriteString("Restart=on-failure\n")
	b.WriteString("RestartSec=2\n")
	b.WriteString("NoNewPrivileges=true\n")
	b.WriteString("PrivateTmp=true\n\n")

	b.WriteString("[Install]\n")
	b.WriteString("WantedBy=multi-user.target\n")
	return b.String()
}

// Install writes the unit file. The caller still runs systemctl
// daemon-reload and enable.
func Install(path string, p UnitParams) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("install unit: %w", err)
	}
	if err := os.WriteFile(path, []byte(Unit(p)), 0644); err != nil {
		return fmt.Errorf("install unit: %w", err)
	}
	return nil
}
