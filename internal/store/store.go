// Package store persists recorded temperature history: one directory per
// recording run, holding a CSV of timestamped temperatures and a JSON
// metadata file written on close.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID       string    `json:"id"`
	Started  time.Time `json:"started"`
	Dt       float64   `json:"dt"`
	Setpoint float64   `json:"setpoint"`
	Channels int       `json:"channels"`
	Samples  int       `json:"samples"`
}

// Run is one open recording session. Append is safe to call from the servo
// loop while the command path closes the run.
type Run struct {
	mu      sync.Mutex
	dir     string
	file    *os.File
	w       *csv.Writer
	meta    RunMetadata
	closed  bool
	started time.Time
}

// Begin opens a new run directory and its temperature CSV.
func (s *Store) Begin(dt, setpoint float64, channels int) (*Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	now := time.Now()
	id := fmt.Sprintf("thermal_%d", now.Unix())
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(dir, "temps.csv"))
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)

	header := []string{"time"}
	for i := 0; i < channels; i++ {
		header = append(header, fmt.Sprintf("t%d", i))
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}

	return &Run{
		dir:     dir,
		file:    f,
		w:       w,
		started: now,
		meta: RunMetadata{
			ID:       id,
			Started:  now,
			Dt:       dt,
			Setpoint: setpoint,
			Channels: channels,
		},
	}, nil
}

// Append writes one cycle's temperatures. Implements the servo recorder.
func (r *Run) Append(ts time.Time, temps []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("store: run %s is closed", r.meta.ID)
	}
	row := make([]string, 0, len(temps)+1)
	row = append(row, ts.Format(time.RFC3339Nano))
	for _, t := range temps {
		row = append(row, strconv.FormatFloat(t, 'f', 6, 64))
	}
	if err := r.w.Write(row); err != nil {
		return err
	}
	r.meta.Samples++
	return nil
}

// Close flushes the CSV and writes the metadata file.
func (r *Run) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.w.Flush()
	if err := r.w.Error(); err != nil {
		r.file.Close()
		return err
	}
	if err := r.file.Close(); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(r.dir, "metadata.json"))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(r.meta)
}

// Samples is a completed run's temperature history, one row per cycle.
type Samples struct {
	Times []time.Time
	Temps [][]float64 // [cycle][channel]
}

// Load reads back a recorded run's CSV.
func (s *Store) Load(id string) (*Samples, error) {
	f, err := os.Open(filepath.Join(s.baseDir, id, "temps.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("run %s: empty temperature file", id)
	}

	out := &Samples{
		Times: make([]time.Time, 0, len(rows)-1),
		Temps: make([][]float64, 0, len(rows)-1),
	}
	for _, row := range rows[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("run %s: short row", id)
		}
		ts, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		temps := make([]float64, len(row)-1)
		for i, cell := range row[1:] {
			temps[i], err = strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("run %s: %w", id, err)
			}
		}
		out.Times = append(out.Times, ts)
		out.Temps = append(out.Temps, temps)
	}
	return out, nil
}

// List returns metadata for completed runs, newest last.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue // run still open or interrupted
		}
		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		runs = append(runs, meta)
	}
	return runs, nil
}
