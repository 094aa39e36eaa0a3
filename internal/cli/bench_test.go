package cli

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/mandelbrot/pkg/errors"
	"github.com/matzehuels/mandelbrot/pkg/pipeline"
)

func benchRunner() *pipeline.Runner {
	return pipeline.NewRunner(nil, nil, log.NewWithOptions(io.Discard, log.Options{}))
}

func TestRunBench(t *testing.T) {
	var reported []int
	rows, err := runBench(context.Background(), benchRunner(),
		pipeline.Options{Width: 40, Height: 40}, 4, 2,
		func(r benchRow) { reported = append(reported, r.Threads) })
	if err != nil {
		t.Fatalf("runBench: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	for i, r := range rows {
		if r.Threads != i+1 {
			t.Errorf("row %d threads = %d", i, r.Threads)
		}
		if r.Elapsed <= 0 {
			t.Errorf("row %d elapsed = %v, want > 0", i, r.Elapsed)
		}
	}
	if rows[0].Speedup != 1 {
		t.Errorf("baseline speedup = %v, want 1", rows[0].Speedup)
	}
	if len(reported) != 4 || reported[3] != 4 {
		t.Errorf("reported = %v", reported)
	}
}

func TestRunBenchInvalid(t *testing.T) {
	ctx := context.Background()
	base := pipeline.Options{Width: 4, Height: 4}

	if _, err := runBench(ctx, benchRunner(), base, 0, 1, nil); !errors.Is(err, errors.ErrCodeInvalidConfiguration) {
		t.Errorf("max-threads 0: %v", err)
	}
	if _, err := runBench(ctx, benchRunner(), base, 2, 0, nil); !errors.Is(err, errors.ErrCodeInvalidConfiguration) {
		t.Errorf("repeat 0: %v", err)
	}
	if _, err := runBench(ctx, benchRunner(), pipeline.Options{Width: 0, Height: 4}, 2, 1, nil); !errors.Is(err, errors.ErrCodeInvalidConfiguration) {
		t.Errorf("zero width: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := runBench(cancelled, benchRunner(), base, 2, 1, nil); err != context.Canceled {
		t.Errorf("cancelled: %v, want context.Canceled", err)
	}
}

func TestWriteBenchTSV(t *testing.T) {
	rows := []benchRow{
		{Threads: 1, Elapsed: 2 * time.Second, Speedup: 1},
		{Threads: 2, Elapsed: 1500 * time.Millisecond, Speedup: 4.0 / 3.0},
	}
	var buf bytes.Buffer
	if err := writeBenchTSV(&buf, rows); err != nil {
		t.Fatal(err)
	}
	want := "1\t2\t1.000\n2\t1.5\t1.333\n"
	if buf.String() != want {
		t.Errorf("TSV = %q, want %q", buf.String(), want)
	}
}

func TestSpeedup(t *testing.T) {
	if got := speedup(4*time.Second, 2*time.Second); got != 2 {
		t.Errorf("speedup = %v, want 2", got)
	}
	if got := speedup(time.Second, 0); got != 0 {
		t.Errorf("speedup with zero duration = %v, want 0", got)
	}
}

func TestBenchCommand(t *testing.T) {
	isolate(t)
	stdout, _, err := execute(t, "bench", "--width", "16", "--height", "16", "--max-threads", "3")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), stdout)
	}
	for i, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			t.Fatalf("line %q: want 3 tab-separated fields", line)
		}
		if fields[0] != strconv.Itoa(i+1) {
			t.Errorf("line %d threads = %q", i, fields[0])
		}
		if _, err := strconv.ParseFloat(fields[1], 64); err != nil {
			t.Errorf("line %d seconds %q: %v", i, fields[1], err)
		}
	}
}

func TestBenchCommandRequiresSize(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "bench", "--width", "16")
	if err == nil || !strings.Contains(err.Error(), "--height is required") {
		t.Errorf("error = %v, want missing --height", err)
	}
}

func TestBenchModel(t *testing.T) {
	m := NewBenchModel(100, 50, 3)

	next, cmd := m.Update(benchRowMsg{Threads: 1, Elapsed: time.Second, Speedup: 1})
	if cmd != nil {
		t.Error("row message should not quit")
	}
	next, _ = next.Update(benchRowMsg{Threads: 2, Elapsed: 500 * time.Millisecond, Speedup: 2})
	m = next.(BenchModel)
	if len(m.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(m.Rows))
	}

	view := m.View()
	for _, want := range []string{"Threads", "Speedup", "2.00x", "[2/3]", "100×50"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	next, cmd = m.Update(benchDoneMsg{})
	m = next.(BenchModel)
	if !m.Done || cmd == nil {
		t.Error("done message should finish and quit")
	}
	if !strings.Contains(m.View(), "done") {
		t.Error("finished view should say done")
	}
}

func TestBenchModelQuit(t *testing.T) {
	m := NewBenchModel(10, 10, 5)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !next.(BenchModel).Aborted || cmd == nil {
		t.Error("q should abort and quit")
	}
}

func TestBenchModelError(t *testing.T) {
	m := NewBenchModel(10, 10, 5)
	next, _ := m.Update(benchDoneMsg{err: errors.New(errors.ErrCodeWorkerFailure, "band exploded")})
	if !strings.Contains(next.(BenchModel).View(), "band exploded") {
		t.Error("view should show the error")
	}
}

func TestSpeedupBar(t *testing.T) {
	if got := speedupBar(2, 2); len([]rune(got)) != barWidth {
		t.Errorf("best bar length = %d, want %d", len([]rune(got)), barWidth)
	}
	if got := speedupBar(0.01, 10); len([]rune(got)) != 1 {
		t.Errorf("tiny bar = %q, want one block", got)
	}
	if got := speedupBar(1, 0); got != "" {
		t.Errorf("bar without best = %q", got)
	}
}
