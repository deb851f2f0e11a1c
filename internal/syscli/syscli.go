// Package syscli implements the `sys` CLI subcommand: a thin
// wrapper over the host's system-telemetry API, deliberately out of core
// scope ("the filesystem/system telemetry API... treat as
// external collaborators") — this package is that collaborator, gathering
// its data via github.com/shirou/gopsutil/v3 rather than duplicating
// platform-specific /proc parsing by hand.
package syscli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/pflag"
)

// Run dispatches one `sys <command>` invocation. It returns the process
// exit code (0 on success, 1 on invocation error).
func Run(args []string, out io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: sys <info|cpu|memory|processes|ports|battery|paths|quick|temp> [flags]")
		return 1
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "info":
		return runInfo(rest, out)
	case "cpu":
		return runCPU(rest, out)
	case "memory":
		return runMemory(rest, out)
	case "processes":
		return runProcesses(rest, out)
	case "ports":
		return runPorts(rest, out)
	case "battery":
		return runBattery(rest, out)
	case "paths":
		return runPaths(rest, out)
	case "quick":
		return runQuick(rest, out)
	case "temp":
		return runTemp(rest, out)
	default:
		fmt.Fprintf(out, "sys: unknown command %q\n", cmd)
		return 1
	}
}

func emit(out io.Writer, asJSON bool, text string, data interface{}) int {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			fmt.Fprintln(out, err)
			return 1
		}
		return 0
	}
	fmt.Fprintln(out, text)
	return 0
}

func runInfo(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("info", pflag.ContinueOnError)
	extended := fs.Bool("extended", false, "include extended host details")
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	info, err := host.Info()
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	data := map[string]interface{}{
		"hostname": info.Hostname,
		"os":       info.OS,
		"platform": info.Platform,
		"uptime":   info.Uptime,
	}
	if *extended {
		data["kernelVersion"] = info.KernelVersion
		data["kernelArch"] = info.KernelArch
		data["bootTime"] = info.BootTime
		data["procs"] = info.Procs
	}
	text := fmt.Sprintf("host: %s  os: %s/%s  uptime: %ds", info.Hostname, info.OS, info.Platform, info.Uptime)
	return emit(out, *asJSON, text, data)
}

func runCPU(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("cpu", pflag.ContinueOnError)
	showCores := fs.Bool("cores", false, "report per-core percentages")
	watch := fs.Bool("watch", false, "keep sampling until interrupted")
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	sample := func() int {
		percents, err := cpu.Percent(200*time.Millisecond, *showCores)
		if err != nil {
			fmt.Fprintln(out, err)
			return 1
		}
		counts, _ := cpu.Counts(true)
		data := map[string]interface{}{"percent": percents, "logicalCores": counts}
		return emit(out, *asJSON, fmt.Sprintf("cpu: %.1f%% (%d cores)", percents[0], counts), data)
	}

	if !*watch {
		return sample()
	}
	for {
		if rc := sample(); rc != 0 {
			return rc
		}
		time.Sleep(time.Second)
	}
}

func runMemory(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("memory", pflag.ContinueOnError)
	watch := fs.Bool("watch", false, "keep sampling until interrupted")
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	sample := func() int {
		vm, err := mem.VirtualMemory()
		if err != nil {
			fmt.Fprintln(out, err)
			return 1
		}
		data := map[string]interface{}{
			"total":       vm.Total,
			"used":        vm.Used,
			"available":   vm.Available,
			"usedPercent": vm.UsedPercent,
		}
		text := fmt.Sprintf("memory: %.1f%% used (%d/%d bytes)", vm.UsedPercent, vm.Used, vm.Total)
		return emit(out, *asJSON, text, data)
	}

	if !*watch {
		return sample()
	}
	for {
		if rc := sample(); rc != 0 {
			return rc
		}
		time.Sleep(time.Second)
	}
}

func runProcesses(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("processes", pflag.ContinueOnError)
	pid := fs.Int32("pid", 0, "show only this pid")
	topCPU := fs.Int("top-cpu", 0, "show the top K processes by CPU usage")
	topMem := fs.Int("top-mem", 0, "show the top K processes by memory usage")
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	procs, err := process.Processes()
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}

	type row struct {
		PID  int32   `json:"pid"`
		Name string  `json:"name"`
		CPU  float64 `json:"cpuPercent"`
		Mem  float32 `json:"memPercent"`
	}
	rows := make([]row, 0, len(procs))
	for _, p := range procs {
		if *pid != 0 && p.Pid != *pid {
			continue
		}
		name, _ := p.Name()
		cpuPct, _ := p.CPUPercent()
		memPct, _ := p.MemoryPercent()
		rows = append(rows, row{PID: p.Pid, Name: name, CPU: cpuPct, Mem: memPct})
	}

	if *topCPU > 0 {
		sort.Slice(rows, func(i, j int) bool { return rows[i].CPU > rows[j].CPU })
		if len(rows) > *topCPU {
			rows = rows[:*topCPU]
		}
	} else if *topMem > 0 {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Mem > rows[j].Mem })
		if len(rows) > *topMem {
			rows = rows[:*topMem]
		}
	}

	text := fmt.Sprintf("%d processes", len(rows))
	return emit(out, *asJSON, text, rows)
}

func runPorts(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("ports", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	conns, err := net.Connections("inet")
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}

	type row struct {
		LocalPort uint32 `json:"localPort"`
		PID       int32  `json:"pid"`
		Status    string `json:"status"`
	}
	rows := make([]row, 0, len(conns))
	for _, c := range conns {
		if c.Status != "LISTEN" {
			continue
		}
		rows = append(rows, row{LocalPort: c.Laddr.Port, PID: c.Pid, Status: c.Status})
	}

	text := fmt.Sprintf("%d listening ports", len(rows))
	return emit(out, *asJSON, text, rows)
}

func runBattery(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("battery", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	// gopsutil carries no battery module; this reads the Linux power_supply
	// sysfs class directly, the one genuinely platform-specific telemetry
	// surface nothing in the dependency pack addresses.
	pct, status, err := readLinuxBattery()
	if err != nil {
		return emit(out, *asJSON, "battery: unavailable", map[string]interface{}{"available": false, "error": err.Error()})
	}
	text := fmt.Sprintf("battery: %d%% (%s)", pct, status)
	return emit(out, *asJSON, text, map[string]interface{}{"available": true, "percent": pct, "status": status})
}

func runPaths(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("paths", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cwd, _ := os.Getwd()
	exe, _ := os.Executable()
	data := map[string]interface{}{
		"cwd":        cwd,
		"executable": exe,
		"tempDir":    os.TempDir(),
		"home":       os.Getenv("HOME"),
	}
	text := fmt.Sprintf("cwd: %s  exe: %s", cwd, exe)
	return emit(out, *asJSON, text, data)
}

func runQuick(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("quick", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	vm, _ := mem.VirtualMemory()
	counts, _ := cpu.Counts(true)
	info, _ := host.Info()
	data := map[string]interface{}{
		"cores":      counts,
		"memPercent": vm.UsedPercent,
		"uptimeSecs": info.Uptime,
		"hostname":   info.Hostname,
	}
	text := fmt.Sprintf("%d cores, %.0f%% mem used, up %ds", counts, vm.UsedPercent, info.Uptime)
	return emit(out, *asJSON, text, data)
}

func runTemp(args []string, out io.Writer) int {
	fs := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	temps, err := host.SensorsTemperatures()
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	text := fmt.Sprintf("%d sensors reporting", len(temps))
	return emit(out, *asJSON, text, temps)
}
