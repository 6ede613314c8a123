// Package pprof wires Go runtime profiling into chatd: file profiles written
// around a serve run and the /debug/pprof handlers for the metrics endpoint.
package pprof

import (
	"errors"
	"fmt"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Config selects which profiles to record. Empty paths disable a profile.
type Config struct {
	CPUProfile   string
	HeapProfile  string
	MutexProfile string // contention on the shared state lock shows up here

	// MutexProfileFraction samples 1/n contention events (default: 1)
	MutexProfileFraction int
}

// Enabled reports whether any file profile is configured.
func (c Config) Enabled() bool {
	return c.CPUProfile != "" || c.HeapProfile != "" || c.MutexProfile != ""
}

// Profiler records the configured profiles between Start and Stop.
type Profiler struct {
	config  Config
	cpuFile *os.File

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a profiler for config.
func New(config Config) *Profiler {
	if config.MutexProfileFraction == 0 {
		config.MutexProfileFraction = 1
	}
	return &Profiler{config: config}
}

// Start begins CPU profiling and mutex sampling as configured.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("profiler already started")
	}
	p.started = true

	if p.config.CPUProfile != "" {
		f, err := create(p.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		p.cpuFile = f
	}

	if p.config.MutexProfile != "" {
		runtime.SetMutexProfileFraction(p.config.MutexProfileFraction)
	}
	return nil
}

// Stop finishes the CPU profile and writes the heap and mutex profiles.
// Calling it again is a no-op.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true

	var errs []error
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		}
		p.cpuFile = nil
	}

	if p.config.HeapProfile != "" {
		runtime.GC()
		if err := writeProfile("heap", p.config.HeapProfile); err != nil {
			errs = append(errs, err)
		}
	}

	if p.config.MutexProfile != "" {
		if err := writeProfile("mutex", p.config.MutexProfile); err != nil {
			errs = append(errs, err)
		}
		runtime.SetMutexProfileFraction(0)
	}

	return errors.Join(errs...)
}

// Register mounts the /debug/pprof handlers on mux.
func Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", netpprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Create(path)
}

// writeProfile writes a named profile to a file
func writeProfile(name, path string) error {
	prof := pprof.Lookup(name)
	if prof == nil {
		return fmt.Errorf("profile %q not found", name)
	}
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("%s profile: %w", name, err)
	}
	defer f.Close()
	if err := prof.WriteTo(f, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}
