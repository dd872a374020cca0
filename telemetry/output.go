package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// FrameRecord is one CSV row: the trail summary of one behaviour at one frame.
type FrameRecord struct {
	Frame     uint64  `csv:"frame"`
	Instance  string  `csv:"instance"`
	Particles int     `csv:"particles"`
	Dimension int     `csv:"dimension"`
	Mean      float64 `csv:"mean"`
	StdDev    float64 `csv:"std_dev"`
	Max       float64 `csv:"max"`
	Median    float64 `csv:"median"`
	Coverage  float64 `csv:"coverage"`
}

func NewFrameRecord(frame uint64, instance string, particles, dimension int, s TrailStats) FrameRecord {
	return FrameRecord{
		Frame:     frame,
		Instance:  instance,
		Particles: particles,
		Dimension: dimension,
		Mean:      s.Mean,
		StdDev:    s.StdDev,
		Max:       s.Max,
		Median:    s.Median,
		Coverage:  s.Coverage,
	}
}

// CSVWriter appends FrameRecords, writing the header with the first batch.
type CSVWriter struct {
	out           io.Writer
	closer        io.Closer
	headerWritten bool
}

func NewCSVWriter(out io.Writer) *CSVWriter {
	return &CSVWriter{out: out}
}

// CreateCSV creates (or truncates) path, making parent directories.
func CreateCSV(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating telemetry directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &CSVWriter{out: f, closer: f}, nil
}

func (w *CSVWriter) Write(records ...FrameRecord) error {
	if w == nil || len(records) == 0 {
		return nil
	}
	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.out); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, w.out); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

func (w *CSVWriter) Close() error {
	if w == nil || w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
