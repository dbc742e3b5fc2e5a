package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/nervepipe/internal/pipeline"
	"github.com/nvandessel/nervepipe/internal/project"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <run>...",
		Short: "Run the pipeline for one or more run configs",
		Long: `Run the sample, model and sim stages of each named run config
(config/user/runs/<run>.json), hand the run to the solver, and expand the
solved sims.

Runs are processed in the order given; the first failure stops the rest.

Examples:
  nervepipe run demo
  nervepipe run demo --smart
  nervepipe run demo other --skip-handoff`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			skipHandoff, _ := cmd.Flags().GetBool("skip-handoff")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			smart := a.cfg.Cache.Smart
			if cmd.Flags().Changed("smart") {
				smart, _ = cmd.Flags().GetBool("smart")
			}

			o, err := a.orchestrator(cmd.Context(), skipHandoff)
			if err != nil {
				return err
			}

			var reports []*pipeline.Report
			for _, name := range args {
				spec, err := o.Resolver.RunSpec(name)
				if err != nil {
					return err
				}
				a.logger.Info("starting run", "run", name, "sample", spec.Sample, "smart", smart)
				rep, err := o.Run(cmd.Context(), spec, pipeline.Options{Smart: smart})
				reports = append(reports, rep)
				if err != nil {
					printReports(cmd.OutOrStdout(), jsonOut, reports)
					return fmt.Errorf("run %s: %w", name, err)
				}
			}
			printReports(cmd.OutOrStdout(), jsonOut, reports)
			return nil
		},
	}

	cmd.Flags().Bool("smart", false, "Reuse verified checkpoints from earlier runs (default from cache.smart)")
	cmd.Flags().Bool("skip-handoff", false, "Stop after the sim stages; run 'nervepipe finalize' once the solver has run")

	return cmd
}

func newFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <run>...",
		Short: "Expand the sims of runs whose solver step already ran",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.orchestrator(cmd.Context(), true)
			if err != nil {
				return err
			}

			var reports []*pipeline.Report
			for _, name := range args {
				spec, err := o.Resolver.RunSpec(name)
				if err != nil {
					return err
				}
				rep, err := o.Finalize(cmd.Context(), spec)
				reports = append(reports, rep)
				if err != nil {
					printReports(cmd.OutOrStdout(), jsonOut, reports)
					return fmt.Errorf("finalize %s: %w", name, err)
				}
			}
			printReports(cmd.OutOrStdout(), jsonOut, reports)
			return nil
		},
	}
}

func printReports(w io.Writer, jsonOut bool, reports []*pipeline.Report) {
	if jsonOut {
		json.NewEncoder(w).Encode(reports)
		return
	}
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		fmt.Fprintf(w, "Run %s", rep.Run)
		if rep.RunID != "" {
			fmt.Fprintf(w, " (%s)", rep.RunID)
		}
		fmt.Fprintln(w)
		for _, s := range rep.Stages {
			line := fmt.Sprintf("  %-8s %-28s %s", s.Stage, s.Key, s.Outcome)
			if s.Error != "" {
				line += ": " + s.Error
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintf(w, "  handoff: %s, finalized sims: %d\n", rep.Handoff, rep.Finalized)
	}
}

func newPlaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "place <run>",
		Short: "Preview cuff placement for the models of a run",
		Long: `Compute the cuff rotation and shift for every model of a run without
writing the model configs. The sample checkpoint is reused when it verifies
and built otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := a.orchestrator(cmd.Context(), true)
			if err != nil {
				return err
			}
			spec, err := o.Resolver.RunSpec(args[0])
			if err != nil {
				return err
			}

			placements, placeErr := o.Place(cmd.Context(), spec)
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(placements)
			} else {
				printPlacements(cmd.OutOrStdout(), placements)
			}
			return placeErr
		},
	}
}

func printPlacements(w io.Writer, placements []pipeline.Placement) {
	for _, p := range placements {
		if p.Error != "" {
			fmt.Fprintf(w, "model %d (%s): %s\n", p.Model, p.Preset, p.Error)
			continue
		}
		r := p.Result
		fmt.Fprintf(w, "model %d (%s): rotate %.3f deg, shift (%.3f, %.3f) um, radius %.3f um of %.3f um needed\n",
			p.Model, p.Preset, r.AngleDeg, r.ShiftX, r.ShiftY, r.EnclosingRadiusUM, r.RequiredRadiusUM)
	}
}

// specFor resolves a run name for commands that only read state.
func specFor(layout project.Layout, name string) (project.RunSpec, error) {
	return project.NewFileResolver(layout).RunSpec(name)
}
