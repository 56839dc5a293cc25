package desktop

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo identifies a running process.
type ProcessInfo struct {
	PID  int32  `json:"pid" yaml:"pid"`
	Name string `json:"name" yaml:"name"`
}

// FindProcesses returns the processes named name, compared case-insensitively
// with any ".exe" or ".app" suffix ignored.
func FindProcesses(ctx context.Context, name string) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	want := baseName(name)
	var matches []ProcessInfo
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if baseName(pname) == want {
			matches = append(matches, ProcessInfo{PID: p.Pid, Name: pname})
		}
	}
	return matches, nil
}

func baseName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(name, ".exe")
	return strings.TrimSuffix(name, ".app")
}
