package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// AVD is an Android Virtual Device that can be booted with the emulator.
type AVD struct {
	Name    string `json:"name" yaml:"name"`
	Running bool   `json:"running" yaml:"running"`
}

// Simulator is an iOS simulator known to simctl.
type Simulator struct {
	Name      string `json:"name" yaml:"name"`
	UDID      string `json:"udid" yaml:"udid"`
	OSVersion string `json:"osVersion,omitempty" yaml:"osVersion,omitempty"`
	State     string `json:"state" yaml:"state"`
}

// Booted reports whether simctl considers the simulator running.
func (s Simulator) Booted() bool { return s.State == "Booted" }

// androidHome returns the SDK root from the usual environment variables.
func androidHome(getenv func(string) string) string {
	for _, key := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT", "ANDROID_SDK_HOME"} {
		if v := getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// EmulatorBinary locates the Android emulator: the SDK's emulator/ then
// tools/ directory, then PATH.
func EmulatorBinary(getenv func(string) string, exists func(string) bool) (string, error) {
	if home := androidHome(getenv); home != "" {
		for _, p := range []string{
			filepath.Join(home, "emulator", "emulator"),
			filepath.Join(home, "tools", "emulator"),
		} {
			if exists(p) {
				return p, nil
			}
		}
	}
	if p, err := exec.LookPath("emulator"); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("emulator binary not found: set ANDROID_HOME or add emulator to PATH")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListAVDs lists AVD names with `emulator -list-avds`. running holds the
// AVD names of emulators adb already reports; it may be nil.
func ListAVDs(ctx context.Context, run Runner, running map[string]bool) ([]AVD, error) {
	if run == nil {
		run = execRunner
	}
	bin, err := EmulatorBinary(os.Getenv, fileExists)
	if err != nil {
		return nil, err
	}
	out, err := run(ctx, bin, "-list-avds")
	if err != nil {
		return nil, fmt.Errorf("list AVDs: %w", err)
	}
	return ParseAVDs(string(out), running), nil
}

// ParseAVDs parses `emulator -list-avds` output, one name per line. The
// emulator prints INFO and WARNING lines on some hosts; those are skipped.
func ParseAVDs(out string, running map[string]bool) []AVD {
	var avds []AVD
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "INFO") || strings.HasPrefix(name, "WARNING") {
			continue
		}
		avds = append(avds, AVD{Name: name, Running: running[name]})
	}
	return avds
}

// AVDName asks a running emulator which AVD it was started from.
func (a *ADB) AVDName(ctx context.Context) (string, error) {
	out, err := a.Command(ctx, "emu", "avd", "name")
	if err != nil {
		return "", err
	}
	// Output is the name followed by an "OK" line.
	name, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(name), nil
}

type simctlList struct {
	Devices map[string][]struct {
		Name        string `json:"name"`
		UDID        string `json:"udid"`
		State       string `json:"state"`
		IsAvailable bool   `json:"isAvailable"`
	} `json:"devices"`
}

// ListSimulators lists available simulators with `xcrun simctl list devices available -j`.
func ListSimulators(ctx context.Context, run Runner) ([]Simulator, error) {
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, "xcrun", "simctl", "list", "devices", "available", "-j")
	if err != nil {
		return nil, fmt.Errorf("list simulators: %w", err)
	}
	return ParseSimulators(out)
}

// ParseSimulators decodes simctl's JSON, keeping available devices sorted
// by OS version then name.
func ParseSimulators(data []byte) ([]Simulator, error) {
	var list simctlList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse simctl output: %w", err)
	}
	var sims []Simulator
	for runtime, devs := range list.Devices {
		version := runtimeVersion(runtime)
		for _, d := range devs {
			if !d.IsAvailable {
				continue
			}
			sims = append(sims, Simulator{Name: d.Name, UDID: d.UDID, OSVersion: version, State: d.State})
		}
	}
	sort.Slice(sims, func(i, j int) bool {
		if sims[i].OSVersion != sims[j].OSVersion {
			return sims[i].OSVersion < sims[j].OSVersion
		}
		return sims[i].Name < sims[j].Name
	})
	return sims, nil
}

// runtimeVersion turns "com.apple.CoreSimulator.SimRuntime.iOS-17-2" into "iOS 17.2".
func runtimeVersion(runtime string) string {
	for _, family := range []string{"iOS", "watchOS", "tvOS", "xrOS"} {
		if i := strings.LastIndex(runtime, family+"-"); i >= 0 {
			return family + " " + strings.ReplaceAll(runtime[i+len(family)+1:], "-", ".")
		}
	}
	return ""
}
