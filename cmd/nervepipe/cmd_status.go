package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nvandessel/nervepipe/internal/checkpoint"
	"github.com/nvandessel/nervepipe/internal/status"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run>",
		Short: "Show checkpoint status and recent history of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			spec, err := specFor(a.layout, args[0])
			if err != nil {
				return err
			}
			records, err := a.store.List(cmd.Context(), strconv.Itoa(spec.Sample))
			if err != nil {
				return err
			}
			runs, err := a.store.Runs(cmd.Context(), spec.Name, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				type recordOut struct {
					Key string `json:"key"`
					status.Record
				}
				out := make([]recordOut, len(records))
				for i, r := range records {
					out[i] = recordOut{Key: r.Key.String(), Record: r}
				}
				return json.NewEncoder(w).Encode(map[string]any{
					"run":         spec.Name,
					"sample":      spec.Sample,
					"checkpoints": out,
					"history":     runs,
				})
			}

			fmt.Fprintf(w, "Checkpoints of sample %d:\n", spec.Sample)
			if len(records) == 0 {
				fmt.Fprintln(w, "  (none)")
			}
			for _, r := range records {
				fmt.Fprintf(w, "  %-28s %-9s %s\n", r.Key, r.State, r.Path)
			}
			fmt.Fprintf(w, "\nRecent runs of %s:\n", spec.Name)
			if len(runs) == 0 {
				fmt.Fprintln(w, "  (none)")
			}
			for _, r := range runs {
				line := fmt.Sprintf("  %s  %s  %-9s smart=%v", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ID, r.State, r.Smart)
				if r.Error != "" {
					line += "  " + r.Error
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 10, "Number of recent runs to show")
	return cmd
}

// verifyResult is the integrity of one checkpoint of a run.
type verifyResult struct {
	Key     string `json:"key"`
	Path    string `json:"path"`
	Valid   bool   `json:"valid"`
	Tracked bool   `json:"tracked"`
	Error   string `json:"error,omitempty"`
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <run>",
		Short: "Verify the checkpoints of a run",
		Long: `Check every sample and sim checkpoint of a run against its embedded
SHA-256 checksum and its status record. Checkpoints that fail here are
rebuilt by the next --smart run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			spec, err := specFor(a.layout, args[0])
			if err != nil {
				return err
			}

			check := func(key status.Key, path string) verifyResult {
				rel, _ := a.layout.Rel(path)
				res := verifyResult{Key: key.String(), Path: rel}
				header, err := checkpoint.Verify(path)
				if err != nil {
					res.Error = err.Error()
					return res
				}
				rec, err := a.store.Get(cmd.Context(), key)
				if err != nil {
					res.Error = err.Error()
					return res
				}
				res.Tracked = rec.State == status.Complete
				res.Valid = !res.Tracked || rec.Checksum == header.Checksum
				if !res.Valid {
					res.Error = "checksum does not match status record"
				}
				return res
			}

			results := []verifyResult{check(status.SampleKey(spec.Sample), a.layout.SampleCheckpoint(spec.Sample))}
			for _, m := range spec.Models {
				for _, s := range spec.Sims {
					results = append(results, check(status.SimKey(spec.Sample, m, s), a.layout.SimCheckpoint(spec.Sample, m, s)))
				}
			}

			failed := 0
			for _, r := range results {
				if !r.Valid {
					failed++
				}
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				if err := json.NewEncoder(w).Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					switch {
					case !r.Valid:
						fmt.Fprintf(w, "FAILED %-28s %s: %s\n", r.Key, r.Path, r.Error)
					case !r.Tracked:
						fmt.Fprintf(w, "OK     %-28s %s (untracked)\n", r.Key, r.Path)
					default:
						fmt.Fprintf(w, "OK     %-28s %s\n", r.Key, r.Path)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checkpoints failed verification", failed, len(results))
			}
			return nil
		},
	}
}
