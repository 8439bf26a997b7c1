package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// EnergyTable writes a CSV with one row per round and one column per node
// holding its remaining energy. Columns are fixed by the first round.
type EnergyTable struct {
	f       *os.File
	w       *csv.Writer
	columns []string
}

// NewEnergyTable truncates path and prepares the CSV writer.
func NewEnergyTable(path string) (*EnergyTable, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create energy table: %w", err)
	}
	return &EnergyTable{f: f, w: csv.NewWriter(f)}, nil
}

// WriteRound appends a row. Nodes missing from a later round leave an
// empty cell.
func (t *EnergyTable) WriteRound(_ context.Context, stats model.RoundStats, nodes []model.NodeSnapshot) error {
	if t.columns == nil {
		t.columns = make([]string, 0, len(nodes))
		for _, n := range nodes {
			t.columns = append(t.columns, n.ID)
		}
		if err := t.w.Write(append([]string{"round"}, t.columns...)); err != nil {
			return fmt.Errorf("write energy header: %w", err)
		}
	}

	energy := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		energy[n.ID] = n.Energy
	}
	row := make([]string, 0, len(t.columns)+1)
	row = append(row, strconv.Itoa(stats.Round))
	for _, id := range t.columns {
		e, ok := energy[id]
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(e, 'f', -1, 64))
	}
	if err := t.w.Write(row); err != nil {
		return fmt.Errorf("write energy row: %w", err)
	}
	t.w.Flush()
	return t.w.Error()
}

func (t *EnergyTable) Close() error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		_ = t.f.Close()
		return err
	}
	return t.f.Close()
}
