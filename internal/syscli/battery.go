package syscli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// readLinuxBattery reads capacity/status out of the first power_supply
// sysfs entry whose type is "Battery". It returns an error on platforms
// without that sysfs tree (macOS, Windows, desktop-less containers).
func readLinuxBattery() (percent int, status string, err error) {
	const base = "/sys/class/power_supply"
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0, "", fmt.Errorf("syscli: no power_supply sysfs tree: %w", err)
	}

	for _, e := range entries {
		dir := filepath.Join(base, e.Name())
		typ, err := os.ReadFile(filepath.Join(dir, "type"))
		if err != nil || strings.TrimSpace(string(typ)) != "Battery" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "capacity"))
		if err != nil {
			continue
		}
		pct, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}
		st, _ := os.ReadFile(filepath.Join(dir, "status"))
		return pct, strings.TrimSpace(string(st)), nil
	}
	return 0, "", fmt.Errorf("syscli: no battery power supply found")
}
