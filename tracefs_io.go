package tracefs

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// TraceFS resolves paths under the tracing pseudo-filesystem and
// performs the small set of file operations the builders' Install,
// Create, Destroy, and Show delegate to. The core never opens a file
// directly; every access to the kernel goes through this interface, so
// tests can swap in a scratch directory.
type TraceFS interface {
	// TracingDir returns the mount point of the tracing filesystem.
	TracingDir() string
	// InstanceDir returns the directory for instance (the tracing dir
	// itself when instance is empty).
	InstanceDir(instance string) (string, error)
	// GetEventFile resolves <instanceDir>/events/<system>/<event>/<leaf>.
	GetEventFile(instance, system, event, leaf string) (string, error)
	// EventFileExists reports whether the given event file exists.
	EventFileExists(instance, system, event, leaf string) bool
	// EventFileAppend appends data followed by a newline to the event
	// file, creating the parent lookup via GetEventFile.
	EventFileAppend(instance, system, event, leaf, data string) error
	// InstanceFileAppend appends data to <instanceDir>/<leaf>.
	InstanceFileAppend(instance, leaf, data string) error
	// EventDisable writes "0" to the event's enable file. Best-effort:
	// callers are expected to ignore its error during teardown.
	EventDisable(instance, system, event string) error
	// ListEventSystems lists the subdirectories of events/, used to
	// resolve an event by name alone.
	ListEventSystems() ([]string, error)
}

// realTraceFS is the production TraceFS, rooted at a tracing mount point
// (normally /sys/kernel/tracing, falling back to the debugfs path).
type realTraceFS struct {
	root string
}

// NewTraceFS builds a TraceFS rooted at root. Pass "" to auto-detect the
// mount point (TRACEFS_MNT env var, then /sys/kernel/tracing, then
// /sys/kernel/debug/tracing).
func NewTraceFS(root string) TraceFS {
	if root == "" {
		root = detectTracingDir()
	}
	return &realTraceFS{root: root}
}

func detectTracingDir() string {
	if v := os.Getenv("TRACEFS_MNT"); v != "" {
		return v
	}
	for _, candidate := range []string{"/sys/kernel/tracing", "/sys/kernel/debug/tracing"} {
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate
		}
	}
	return "/sys/kernel/tracing"
}

func (r *realTraceFS) TracingDir() string { return r.root }

func (r *realTraceFS) InstanceDir(instance string) (string, error) {
	if instance == "" {
		return r.root, nil
	}
	return filepath.Join(r.root, "instances", instance), nil
}

func (r *realTraceFS) GetEventFile(instance, system, event, leaf string) (string, error) {
	if system == "" || event == "" || leaf == "" {
		return "", newError("GetEventFile", InvalidArgument, "system, event and leaf are required")
	}
	dir, err := r.InstanceDir(instance)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events", system, event, leaf), nil
}

func (r *realTraceFS) EventFileExists(instance, system, event, leaf string) bool {
	path, err := r.GetEventFile(instance, system, event, leaf)
	if err != nil {
		return false
	}
	return unix.Access(path, unix.F_OK) == nil
}

func (r *realTraceFS) EventFileAppend(instance, system, event, leaf, data string) error {
	path, err := r.GetEventFile(instance, system, event, leaf)
	if err != nil {
		return err
	}
	return appendFile(path, data)
}

func (r *realTraceFS) InstanceFileAppend(instance, leaf, data string) error {
	dir, err := r.InstanceDir(instance)
	if err != nil {
		return err
	}
	return appendFile(filepath.Join(dir, leaf), data)
}

func (r *realTraceFS) EventDisable(instance, system, event string) error {
	path, err := r.GetEventFile(instance, system, event, "enable")
	if err != nil {
		return err
	}
	return appendFile(path, "0")
}

func (r *realTraceFS) ListEventSystems() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "events"))
	if err != nil {
		return nil, newError("ListEventSystems", IOFailure, "%v", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func appendFile(path, data string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return newError("appendFile", IOFailure, "%s: %v", path, err)
	}
	defer f.Close()
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	if _, err := f.WriteString(data); err != nil {
		return newError("appendFile", IOFailure, "%s: %v", path, err)
	}
	return nil
}
