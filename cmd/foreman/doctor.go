package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/config"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/scheduler"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the database: cycles, orphans, stuck work",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		ctx := context.Background()
		healthy := true

		projects, err := s.ListProjects(ctx)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		sched := scheduler.New(s, bus, log)
		defer sched.Stop()

		for _, p := range projects {
			if cycle, err := sched.DetectDeadlock(ctx, p.ID); err != nil {
				WarnError("project %d: %v", p.ID, err)
				healthy = false
			} else if cycle != nil {
				fmt.Printf("project %d: dependency cycle %v\n", p.ID, cycle)
				healthy = false
			}

			orphans, err := s.ListOrphans(ctx, p.ID)
			if err != nil {
				WarnError("project %d: %v", p.ID, err)
				continue
			}
			for _, w := range orphans {
				fmt.Printf("project %d: orphan %d %q (parent %d missing)\n", p.ID, w.ID, w.Title, *w.ParentID)
				healthy = false
			}

			statusBlocked := types.StatusBlocked
			filter := workItemFilterForProject(p.ID)
			filter.Status = &statusBlocked
			blocked, err := s.ListWorkItems(ctx, filter)
			if err != nil {
				continue
			}
			for _, w := range blocked {
				if bp, err := s.UnresolvedForTask(ctx, w.ID); err == nil && bp != nil {
					fmt.Printf("project %d: task %d blocked on breakpoint %d (%s)\n", p.ID, w.ID, bp.ID, bp.Reason)
				}
			}
		}

		if healthy {
			fmt.Println("ok")
		} else {
			os.Exit(1)
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and export runtime configuration",
}

// exportedConfig is the TOML shape of the resolved runtime settings,
// suitable as a starting point for a --config file.
type exportedConfig struct {
	Scheduler struct {
		Retry config.RetryPolicy `toml:"retry"`
	} `toml:"scheduler"`
	Execution struct {
		MaxTurns config.MaxTurnsConfig `toml:"max_turns"`
	} `toml:"execution"`
	Decision struct {
		Thresholds config.DecisionThresholds `toml:"thresholds"`
	} `toml:"decision"`
	Session struct {
		Zones config.ZoneThresholds `toml:"zones"`
	} `toml:"session"`
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the resolved configuration as TOML",
	Run: func(cmd *cobra.Command, args []string) {
		var out exportedConfig
		out.Scheduler.Retry = config.GetRetryPolicy()
		out.Execution.MaxTurns = config.GetMaxTurnsConfig()
		out.Decision.Thresholds = config.GetDecisionThresholds()
		out.Session.Zones = config.GetZoneThresholds()
		if err := toml.NewEncoder(os.Stdout).Encode(out); err != nil {
			FatalError("%v", err)
		}
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one resolved configuration value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.Raw().Get(args[0]))
	},
}

func init() {
	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configGetCmd)
}
