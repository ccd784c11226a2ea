package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/agent"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/breakpoint"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/errorkit"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/execution"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/llm"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/scheduler"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/session"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule and run work",
}

var scheduleReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Show the ready queue in dispatch order without dispatching",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		ctx := context.Background()
		projectID, _ := cmd.Flags().GetInt64("project")
		sched := scheduler.New(s, bus, log)
		defer sched.Stop()
		if cycle, err := sched.DetectDeadlock(ctx, projectID); err != nil {
			FatalErrorRespectJSON("%v", err)
		} else if cycle != nil {
			FatalErrorWithHint(fmt.Sprintf("dependency cycle: %v", cycle),
				"break the cycle with 'foreman schedule cancel' on one of its members")
		}
		statusReady := types.StatusReady
		filter := workItemFilterForProject(projectID)
		filter.Status = &statusReady
		filter.OrderByPriority = true
		items, err := s.ListWorkItems(ctx, filter)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(items)
			return
		}
		for _, w := range items {
			fmt.Printf("%-5d p%-2d %s\n", w.ID, w.Priority, w.Title)
		}
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Pull ready tasks and execute them through the agent until the queue drains",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		projectID, _ := cmd.Flags().GetInt64("project")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched := scheduler.New(s, bus, log)
		defer sched.Stop()
		sessions := session.NewManager(s, llm.Unavailable{}, bus, log)
		bps := breakpoint.NewManager(s, sched, bus, log)
		// The concrete agent binary is configured by the embedding
		// deployment; the scripted agent here is the degraded-mode
		// stand-in that reports unavailability per dispatch.
		ag := agent.NewScripted(0)
		exec := execution.NewExecutor(s, sched, sessions, bps, ag, llm.Unavailable{}, bus, log)

		if err := sched.ResumeRetries(ctx, projectID); err != nil {
			WarnError("%v", err)
		}

		for {
			if ctx.Err() != nil {
				return
			}
			task, err := sched.Next(ctx, projectID)
			if err != nil {
				FatalErrorRespectJSON("%v", err)
			}
			if task == nil {
				fmt.Println("Queue drained.")
				return
			}
			result, err := exec.Execute(ctx, task)
			if err != nil {
				if errorkit.IsCancelled(err) {
					return
				}
				WarnError("task %d: %v", task.ID, err)
				continue
			}
			fmt.Printf("task %d: %s (%d/%d iterations)\n", task.ID, result.Outcome, result.Iterations, result.MaxTurns)
		}
	},
}

var scheduleCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a work item",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		reason, _ := cmd.Flags().GetString("reason")
		sched := scheduler.New(s, bus, log)
		defer sched.Stop()
		if err := sched.Cancel(context.Background(), parseID(args[0]), reason); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		fmt.Printf("Cancelled task %s\n", args[0])
	},
}

var breakpointCmd = &cobra.Command{
	Use:   "breakpoint",
	Short: "Resolve execution breakpoints",
}

var breakpointResolveCmd = &cobra.Command{
	Use:   "resolve <breakpoint-id> <task-id>",
	Short: "Resolve a breakpoint and unblock or cancel its task",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		note, _ := cmd.Flags().GetString("note")
		cancel, _ := cmd.Flags().GetBool("cancel")
		sched := scheduler.New(s, bus, log)
		defer sched.Stop()
		bps := breakpoint.NewManager(s, sched, bus, log)
		disposition := types.DispositionContinue
		if cancel {
			disposition = types.DispositionCancel
		}
		h := breakpoint.Handle{ID: parseID(args[0]), TaskID: parseID(args[1])}
		if err := bps.Resolve(context.Background(), h, note, disposition); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		fmt.Printf("Resolved breakpoint %s (%s)\n", args[0], disposition)
	},
}

func init() {
	scheduleReadyCmd.Flags().Int64("project", 0, "project id")
	_ = scheduleReadyCmd.MarkFlagRequired("project")
	scheduleRunCmd.Flags().Int64("project", 0, "project id")
	_ = scheduleRunCmd.MarkFlagRequired("project")
	scheduleCancelCmd.Flags().String("reason", "cancelled by user", "cancellation reason")

	breakpointResolveCmd.Flags().String("note", "", "resolution note")
	breakpointResolveCmd.Flags().Bool("cancel", false, "cancel the task instead of unblocking it")

	scheduleCmd.AddCommand(scheduleReadyCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleCancelCmd)
	breakpointCmd.AddCommand(breakpointResolveCmd)
}
