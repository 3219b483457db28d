package scenelog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// NewSimulationID returns an identifier of the form sim_YYYYMMDD_HHMMSS for
// the given start time.
func NewSimulationID(start time.Time) string {
	return "sim_" + start.Format("20060102_150405")
}

// Writer persists scene logs under <dir>/<simulation_id>/.
type Writer struct {
	dir          string
	simulationID string
	logger       *slog.Logger
}

// WriterOption configures a [Writer].
type WriterOption func(*Writer)

// WithWriterLogger sets the logger used for persistence diagnostics.
// Defaults to [slog.Default].
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter creates a Writer for one simulation run and creates its
// directory.
func NewWriter(dir, simulationID string, opts ...WriterOption) (*Writer, error) {
	if simulationID == "" {
		return nil, fmt.Errorf("scenelog: simulation id must not be empty")
	}
	w := &Writer{
		dir:          dir,
		simulationID: simulationID,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(w.runDir(), 0o755); err != nil {
		return nil, fmt.Errorf("scenelog: create run directory: %w", err)
	}
	return w, nil
}

// SimulationID returns the identifier this writer persists under.
func (w *Writer) SimulationID() string { return w.simulationID }

// Path returns the file the given scene's log is written to.
func (w *Writer) Path(sceneID string) string {
	return filepath.Join(w.runDir(), "scene_"+sceneID+".json")
}

func (w *Writer) runDir() string {
	return filepath.Join(w.dir, w.simulationID)
}

// Flush writes l to disk. The document is rendered with two-space indentation
// and without HTML escaping, so Japanese text survives verbatim. The write is
// atomic: a temporary file in the run directory is renamed over the previous
// version.
func (w *Writer) Flush(l *Log) error {
	if l == nil {
		return fmt.Errorf("scenelog: flush: log must not be nil")
	}
	path := w.Path(l.SceneInfo.SceneID)

	tmp, err := os.CreateTemp(w.runDir(), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("scenelog: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(l); err != nil {
		tmp.Close()
		return fmt.Errorf("scenelog: encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scenelog: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("scenelog: rename into place: %w", err)
	}
	return nil
}

// FlushBestEffort writes l to disk and logs instead of failing when the write
// does not succeed. The in-memory log stays authoritative; the next flush
// writes the complete document again.
func (w *Writer) FlushBestEffort(l *Log) {
	if err := w.Flush(l); err != nil {
		w.logger.Warn("scene log flush failed, continuing with in-memory log",
			"simulation_id", w.simulationID, "error", err)
	}
}
