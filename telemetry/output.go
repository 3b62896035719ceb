package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/soypat/metaballs/config"
)

// OutputManager writes run artifacts to a directory: ticks.csv with one
// row per layer per tick, perf.csv with windowed timings and a snapshot of
// the configuration.
type OutputManager struct {
	dir   string
	ticks csvFile
	perf  csvFile
}

// csvFile appends gocsv records to a file, writing the header once.
type csvFile struct {
	name          string
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any) error {
	var err error
	if !c.headerWritten {
		err = gocsv.Marshal(records, c.f)
		c.headerWritten = err == nil
	} else {
		err = gocsv.MarshalWithoutHeaders(records, c.f)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", c.name, err)
	}
	return nil
}

// NewOutputManager creates dir and the CSV files inside it.
// Returns nil if dir is empty (output disabled). Every method of a nil
// OutputManager is a no-op.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	om := &OutputManager{
		dir:   dir,
		ticks: csvFile{name: "ticks.csv"},
		perf:  csvFile{name: "perf.csv"},
	}
	for _, c := range []*csvFile{&om.ticks, &om.perf} {
		f, err := os.Create(filepath.Join(dir, c.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", c.name, err)
		}
		c.f = f
	}
	return om, nil
}

// WriteConfig saves the configuration as config.yaml.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(om.Path("config.yaml"))
}

// WriteTick appends the layer rows of s to ticks.csv.
func (om *OutputManager) WriteTick(s TickStats) error {
	if om == nil || len(s.Layers) == 0 {
		return nil
	}
	return om.ticks.write(s.Layers)
}

// WritePerf appends a windowed timing record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, tick uint64) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(tick)})
}

// Path returns the path of name inside the output directory.
func (om *OutputManager) Path(name string) string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, name)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, c := range []*csvFile{&om.ticks, &om.perf} {
		if c.f == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.f = nil
	}
	return firstErr
}
