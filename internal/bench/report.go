package bench

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/ajitpratap0/slotpool/pkg/compression"
	"github.com/ajitpratap0/slotpool/pkg/errors"
	"github.com/ajitpratap0/slotpool/pkg/json"
	"github.com/ajitpratap0/slotpool/pkg/performance"
	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// Report is the outcome of one run.
type Report struct {
	Mode      string    `json:"mode"`
	Workers   int       `json:"workers"`
	Cycles    int       `json:"cycles"`
	Hold      int       `json:"hold"`
	PageLen   int       `json:"page_len"`
	StartedAt time.Time `json:"started_at"`

	Duration    time.Duration `json:"duration_ns"`
	TotalCycles uint64        `json:"total_cycles"`
	Throughput  float64       `json:"cycles_per_second"`

	Latency   performance.LatencySummary   `json:"latency"`
	GC        performance.GCStats          `json:"gc"`
	Resources *performance.ResourceSummary `json:"resources,omitempty"`

	// Pool is the snapshot taken after verification, before Close.
	Pool      pool.Stats `json:"pool"`
	Verified  bool       `json:"verified"`
	Destroyed int64      `json:"destroyed"`
}

// ReportWriter writes reports as a JSON array, optionally compressed.
type ReportWriter struct {
	out    io.Writer
	file   *os.File
	stream io.WriteCloser
	enc    *json.StreamingEncoder
}

// NewReportWriter writes to path, or to stdout when path is "" or "-".
// algorithm names the compression; when empty it is inferred from the
// file extension.
func NewReportWriter(path, algorithm string, stdout io.Writer) (*ReportWriter, error) {
	algo, err := reportAlgorithm(path, algorithm)
	if err != nil {
		return nil, err
	}
	rw := &ReportWriter{out: stdout}
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create report").
				WithDetail("path", path)
		}
		rw.file, rw.out = f, f
	}

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: compression.Default})
	if err != nil {
		rw.closeFile()
		return nil, err
	}
	rw.stream, err = comp.NewWriter(rw.out)
	if err != nil {
		rw.closeFile()
		return nil, err
	}
	rw.enc = json.NewStreamingEncoder(rw.stream, true)
	if algo == compression.None {
		rw.enc.SetPretty("  ")
	}
	return rw, nil
}

// Write appends a report.
func (rw *ReportWriter) Write(rep *Report) error {
	if err := rw.enc.Encode(rep); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write report")
	}
	return nil
}

// Close finishes the array, flushes compression and closes the file.
func (rw *ReportWriter) Close() error {
	err := rw.enc.Close()
	if cerr := rw.stream.Close(); err == nil {
		err = cerr
	}
	if cerr := rw.closeFile(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish report")
	}
	return nil
}

func (rw *ReportWriter) closeFile() error {
	if rw.file == nil {
		return nil
	}
	f := rw.file
	rw.file = nil
	return f.Close()
}

// ReadReports reads a report file written by ReportWriter.
func ReadReports(path, algorithm string) ([]Report, error) {
	algo, err := reportAlgorithm(path, algorithm)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read report").
			WithDetail("path", path)
	}

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: algo, Level: compression.Default})
	if err != nil {
		return nil, err
	}
	data, err = comp.Decompress(data)
	if err != nil {
		return nil, err
	}

	var reps []Report
	if err := json.NewDecoder(bytes.NewReader(data), true).Decode(&reps); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to decode report").
			WithDetail("path", path)
	}
	return reps, nil
}

func reportAlgorithm(path, algorithm string) (compression.Algorithm, error) {
	if algorithm == "" {
		return compression.AlgorithmFromPath(path), nil
	}
	return compression.ParseAlgorithm(algorithm)
}
