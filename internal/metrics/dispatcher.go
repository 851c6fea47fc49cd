package metrics

import (
	"io"
	"log/slog"
	"sync"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// Dispatcher distributes analysis records to all output modules
type Dispatcher struct {
	outputs []Output
	mu      sync.RWMutex
}

// Output is an interface for record output modules
type Output interface {
	// Write sends an analysis record to the output
	Write(record *models.AnalysisRecord) error

	// Name returns the output module name
	Name() string
}

// NewDispatcher creates a new record dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		outputs: make([]Output, 0),
	}
}

// RegisterOutput adds an output module to the dispatcher
func (d *Dispatcher) RegisterOutput(output Output) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs = append(d.outputs, output)
}

// Outputs returns the names of the registered outputs
func (d *Dispatcher) Outputs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.outputs))
	for _, o := range d.outputs {
		names = append(names, o.Name())
	}
	return names
}

// Dispatch sends a record to all registered outputs.
// Outputs are called in parallel; a failing output does not affect the others.
func (d *Dispatcher) Dispatch(record *models.AnalysisRecord) {
	if d == nil || record == nil {
		return
	}

	d.mu.RLock()
	outputs := make([]Output, len(d.outputs))
	copy(outputs, d.outputs)
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, output := range outputs {
		wg.Add(1)
		go func(o Output) {
			defer wg.Done()
			if err := o.Write(record); err != nil {
				slog.Warn("output write failed",
					"output", o.Name(),
					"analysis_id", record.AnalysisID,
					"error", err)
			}
		}(output)
	}

	wg.Wait()
}

// Close closes every registered output that holds resources
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, o := range d.outputs {
		closer, ok := o.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			slog.Warn("output close failed", "output", o.Name(), "error", err)
		}
	}
	d.outputs = nil
}
