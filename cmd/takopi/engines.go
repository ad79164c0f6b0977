package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p0s/takopi/internal/clifmt"
)

// engineBinaries names the binary each built-in engine shells out to, used
// only by the doctor-style "engines" subcommand to report availability;
// internal/runner builds the real argv independently at run time.
var engineBinaries = map[string]string{
	"codex":    "codex",
	"claude":   "claude",
	"opencode": "opencode",
	"pi":       "pi",
}

func newEnginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List known engines and whether their CLI is on PATH",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]clifmt.NameDetailRow, 0, len(engineBinaries))
			for _, id := range []string{"codex", "claude", "opencode", "pi"} {
				bin := engineBinaries[id]
				detail := fmt.Sprintf("binary %q not found on PATH", bin)
				status := clifmt.RowWarn
				if path, err := exec.LookPath(bin); err == nil {
					detail = fmt.Sprintf("found at %s", path)
					status = clifmt.RowOK
				}
				rows = append(rows, clifmt.NameDetailRow{Name: id, Detail: detail, Status: status})
			}
			clifmt.PrintNameDetailTable(cmd.OutOrStdout(), clifmt.NameDetailTableOptions{
				Title:        "Engines",
				Rows:         rows,
				NameHeader:   "ENGINE",
				DetailHeader: strings.ToUpper("availability"),
			})
			return nil
		},
	}
}
