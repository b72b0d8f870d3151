// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.


package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/fhirimport/config"
)

func init() {
	var jobID, backend string

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List stored checkpoints for a job",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(c.Context(), cfg, backend)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close store", slog.Any("error", err))
				}
			}()

			records, err := store.ListCheckpoints(c.Context(), jobID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TABLE\tEND SURROGATE ID\tROWS\tUPDATED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Table, r.EndSurrogateID, r.RowCount, r.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job id to list")
	cmd.Flags().StringVar(&backend, "backend", "", "Storage backend, overriding database.backend")
	_ = cmd.MarkFlagRequired("job-id")

	rootCmd.AddCommand(cmd)
}
