package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunRecordAndList(t *testing.T) {
	st := New(t.TempDir())

	run, err := st.Begin(1.0, 25.0, 2)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		if err := run.Append(ts, []float64{24.5 + float64(i)*0.1, 24.6}); err != nil {
			t.Fatal(err)
		}
	}
	if err := run.Close(); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Samples != 3 {
		t.Errorf("samples = %d, want 3", runs[0].Samples)
	}
	if runs[0].Channels != 2 {
		t.Errorf("channels = %d, want 2", runs[0].Channels)
	}

	f, err := os.Open(filepath.Join(run.dir, "temps.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 { // header + 3 samples
		t.Fatalf("expected 4 csv rows, got %d", len(rows))
	}
	if rows[0][1] != "t0" || rows[0][2] != "t1" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "24.500000" {
		t.Errorf("first sample = %q", rows[1][1])
	}
}

func TestAppendAfterClose(t *testing.T) {
	st := New(t.TempDir())
	run, err := st.Begin(1.0, 25.0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := run.Close(); err != nil {
		t.Fatal(err)
	}
	if err := run.Append(time.Now(), []float64{25}); err == nil {
		t.Error("append after close should fail")
	}
	// Closing twice is harmless.
	if err := run.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestListEmptyAndOpenRuns(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "missing"))
	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	// An unclosed run has no metadata yet and is skipped.
	run, err := st.Begin(1.0, 25.0, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer run.Close()
	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("open run should not be listed, got %d", len(runs))
	}
}

func TestLoadRoundTrip(t *testing.T) {
	st := New(t.TempDir())

	run, err := st.Begin(1.0, 25.0, 2)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := [][]float64{{24.5, 24.6}, {24.7, 24.8}}
	for i, row := range want {
		if err := run.Append(base.Add(time.Duration(i)*time.Second), row); err != nil {
			t.Fatal(err)
		}
	}
	if err := run.Close(); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	got, err := st.Load(runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Temps) != len(want) {
		t.Fatalf("rows = %d, want %d", len(got.Temps), len(want))
	}
	for i := range want {
		if !got.Times[i].Equal(base.Add(time.Duration(i) * time.Second)) {
			t.Errorf("row %d time = %v", i, got.Times[i])
		}
		for j := range want[i] {
			if got.Temps[i][j] != want[i][j] {
				t.Errorf("row %d col %d = %v, want %v", i, j, got.Temps[i][j], want[i][j])
			}
		}
	}

	if _, err := st.Load("no_such_run"); err == nil {
		t.Fatal("expected error for missing run")
	}
}
