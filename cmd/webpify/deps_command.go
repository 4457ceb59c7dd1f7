package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"webpify/internal/deps"
)

func newDepsCommand(cctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check the external binaries webpify shells out to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			type depPayload struct {
				Name        string `json:"name"`
				Command     string `json:"command"`
				Available   bool   `json:"available"`
				Optional    bool   `json:"optional"`
				Version     string `json:"version,omitempty"`
				Description string `json:"description,omitempty"`
				Detail      string `json:"detail,omitempty"`
			}

			statuses := deps.CheckBinaries(deps.Default(cfg))
			missing := make([]string, 0)
			payloads := make([]depPayload, 0, len(statuses))
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				version := ""
				if status.Available && status.Name == "cwebp" {
					version, _ = deps.CwebpVersion(status.Command)
				}
				state := "ok"
				note := status.Description
				if !status.Available {
					state = "missing"
					note = status.Detail
					if !status.Optional {
						missing = append(missing, status.Name)
					}
				}
				payloads = append(payloads, depPayload{
					Name:        status.Name,
					Command:     status.Command,
					Available:   status.Available,
					Optional:    status.Optional,
					Version:     version,
					Description: status.Description,
					Detail:      status.Detail,
				})
				rows = append(rows, []string{status.Name, status.Command, state, version, note})
			}

			if jsonOut {
				if err := writeJSON(cmd, payloads); err != nil {
					return err
				}
			} else {
				headers := []string{"BINARY", "COMMAND", "STATUS", "VERSION", "NOTES"}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, nil, nil))
			}

			if len(missing) > 0 {
				return fmt.Errorf("missing required binaries: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}
