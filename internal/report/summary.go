package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/signalsfoundry/wsn-simulator/model"
)

// RenderSummary prints one table row per round.
func RenderSummary(w io.Writer, history []model.RoundStats) error {
	table := tablewriter.NewWriter(w)
	table.Header("Round", "Alive", "Sleeping", "Isolated", "Dead", "Reachable", "Edges", "Controller J", "Residual J")

	for _, s := range history {
		if err := table.Append(
			strconv.Itoa(s.Round),
			strconv.Itoa(s.Alive),
			strconv.Itoa(s.Sleeping),
			strconv.Itoa(s.Isolated),
			strconv.Itoa(s.Dead),
			strconv.Itoa(s.Reachable),
			strconv.Itoa(s.FeasibleEdges),
			fmt.Sprintf("%.1f", s.ControllerEnergy),
			fmt.Sprintf("%.1f", s.ResidualEnergy),
		); err != nil {
			return fmt.Errorf("append summary row: %w", err)
		}
	}
	return table.Render()
}
