package sweeper

import (
	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilProcessCheck builds a ProcessCheck that scans running processes
// for one whose working directory matches projectPath. It corroborates
// that the host editor/CLI behind a session is still alive before the
// sweeper expires that session purely on a 1-hour idle timeout — useful
// for long, CPU-idle tool waits (a human reading a huge diff, a paused
// debugger) that shouldn't look abandoned just because nothing wrote to
// the transcript.
//
// This is the sole caller gopsutil ever gets in this codebase: the teacher
// declared the dependency in go.mod but never imported it, hand-rolling
// /proc parsing instead for its own (unrelated) CPU-churn detection.
func GopsutilProcessCheck() ProcessCheck {
	return func(projectPath string) bool {
		if projectPath == "" {
			return false
		}
		procs, err := process.Processes()
		if err != nil {
			return false
		}
		for _, p := range procs {
			cwd, err := p.Cwd()
			if err != nil {
				continue
			}
			if cwd == projectPath {
				return true
			}
		}
		return false
	}
}
