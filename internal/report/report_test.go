package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/wsn-simulator/model"
)

func sampleRounds() []model.RoundStats {
	return []model.RoundStats{
		{Round: 0, Alive: 5, Isolated: 1, Dead: 0, Sleeping: 2, FeasibleEdges: 7, ControllerEnergy: 1000},
		{Round: 1, Alive: 4, Isolated: 0, Dead: 1, Sleeping: 1, FeasibleEdges: 5, ControllerEnergy: 900},
	}
}

func sampleNodes(energies ...float64) []model.NodeSnapshot {
	ids := []string{"(1, 1)", "(2, 2)", "(0, 0)"}
	out := make([]model.NodeSnapshot, 0, len(energies))
	for i, e := range energies {
		out = append(out, model.NodeSnapshot{ID: ids[i], Energy: e, State: "awake"})
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestSeriesWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sw, err := NewSeriesWriter(dir)
	if err != nil {
		t.Fatalf("NewSeriesWriter: %v", err)
	}
	for _, r := range sampleRounds() {
		if err := sw.WriteRound(context.Background(), r, nil); err != nil {
			t.Fatalf("WriteRound: %v", err)
		}
	}
	if err := sw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := map[string]string{
		AliveFile:    "0,5\n1,4\n",
		IsolatedFile: "0,1\n1,0\n",
		DeadFile:     "0,0\n1,1\n",
		SleepingFile: "0,2\n1,1\n",
	}
	for name, body := range want {
		if got := readFile(t, filepath.Join(dir, name)); got != body {
			t.Fatalf("%s = %q, want %q", name, got, body)
		}
	}
}

func TestEnergyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "energy.csv")
	table, err := NewEnergyTable(path)
	if err != nil {
		t.Fatalf("NewEnergyTable: %v", err)
	}
	rounds := sampleRounds()
	if err := table.WriteRound(context.Background(), rounds[0], sampleNodes(10, 20.5, 1e6)); err != nil {
		t.Fatalf("WriteRound: %v", err)
	}
	if err := table.WriteRound(context.Background(), rounds[1], sampleNodes(8, 19)); err != nil {
		t.Fatalf("WriteRound: %v", err)
	}
	if err := table.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(readFile(t, path))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header plus 2 rows", len(records))
	}
	if strings.Join(records[0], "|") != "round|(1, 1)|(2, 2)|(0, 0)" {
		t.Fatalf("header = %v", records[0])
	}
	if strings.Join(records[1], "|") != "0|10|20.5|1000000" {
		t.Fatalf("row 0 = %v", records[1])
	}
	if records[2][3] != "" {
		t.Fatalf("missing node must leave an empty cell, got %q", records[2][3])
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewSQLiteStore(ctx, path, RunInfo{NodeCount: 2, CoverageK: 1, Seed: 7})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	if store.RunID() == "" {
		t.Fatalf("run id must default to a uuid")
	}

	rounds := sampleRounds()
	if err := store.WriteRound(ctx, rounds[0], sampleNodes(10, 20, 30)); err != nil {
		t.Fatalf("WriteRound: %v", err)
	}
	if err := store.WriteRound(ctx, rounds[1], sampleNodes(8, 19, 31)); err != nil {
		t.Fatalf("WriteRound: %v", err)
	}

	got, err := store.Rounds(ctx)
	if err != nil {
		t.Fatalf("Rounds: %v", err)
	}
	if len(got) != 2 || got[1].Dead != 1 || got[0].FeasibleEdges != 7 || got[1].ControllerEnergy != 900 {
		t.Fatalf("Rounds() = %+v", got)
	}
	energy, err := store.NodeEnergy(ctx, "(2, 2)")
	if err != nil {
		t.Fatalf("NodeEnergy: %v", err)
	}
	if energy[0] != 20 || energy[1] != 19 {
		t.Fatalf("NodeEnergy = %v", energy)
	}

	if err := store.WriteRound(ctx, rounds[0], nil); err == nil {
		t.Fatalf("duplicate round must be rejected")
	}
}

func TestSQLiteStoreSeparatesRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	first, err := NewSQLiteStore(ctx, path, RunInfo{ID: "a"})
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	if err := first.WriteRound(ctx, sampleRounds()[0], nil); err != nil {
		t.Fatalf("WriteRound: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(ctx, path, RunInfo{ID: "b"})
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	defer second.Close()
	got, err := second.Rounds(ctx)
	if err != nil {
		t.Fatalf("Rounds: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("run b sees %d rounds of run a", len(got))
	}
}

type failingSink struct{ err error }

func (f failingSink) WriteRound(context.Context, model.RoundStats, []model.NodeSnapshot) error {
	return f.err
}
func (f failingSink) Close() error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	sw, err := NewSeriesWriter(dir)
	if err != nil {
		t.Fatalf("NewSeriesWriter: %v", err)
	}
	boom := errors.New("boom")
	m := Multi{failingSink{err: boom}, sw}

	if err := m.WriteRound(context.Background(), sampleRounds()[0], nil); !errors.Is(err, boom) {
		t.Fatalf("WriteRound error = %v, want boom", err)
	}
	if got := readFile(t, filepath.Join(dir, AliveFile)); got != "0,5\n" {
		t.Fatalf("later sinks must still be written, alive.txt = %q", got)
	}
	if err := m.Close(); !errors.Is(err, boom) {
		t.Fatalf("Close error = %v, want boom", err)
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, sampleRounds()); err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"ROUND", "ALIVE", "1000.0", "900.0"} {
		if !strings.Contains(strings.ToUpper(out), want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
