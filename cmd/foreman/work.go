package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/scheduler"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/store"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/workmodel"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Manage the work-item hierarchy",
}

var workCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an epic, story, task, or subtask",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		ctx := context.Background()
		model := workmodel.New(s, bus, log)

		projectID, _ := cmd.Flags().GetInt64("project")
		itemType, _ := cmd.Flags().GetString("type")
		parentID, _ := cmd.Flags().GetInt64("parent")
		priority, _ := cmd.Flags().GetInt("priority")
		taskType, _ := cmd.Flags().GetString("task-type")
		desc, _ := cmd.Flags().GetString("description")

		opts := []workmodel.Option{workmodel.WithPriority(priority)}
		if taskType != "" {
			opts = append(opts, workmodel.WithTaskType(types.TaskType(taskType)))
		}

		var w *types.WorkItem
		var err error
		switch types.WorkItemType(itemType) {
		case types.TypeEpic:
			w, err = model.CreateEpic(ctx, projectID, args[0], desc, opts...)
		case types.TypeStory:
			w, err = model.CreateStory(ctx, projectID, parentID, args[0], desc, opts...)
		case types.TypeTask, types.TypeSubtask:
			var parent *int64
			if parentID != 0 {
				parent = &parentID
			}
			w, err = model.CreateTask(ctx, projectID, types.WorkItemType(itemType), parent, args[0], desc, opts...)
		default:
			FatalError("unknown type %q (epic, story, task, subtask)", itemType)
		}
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		printEntity(w, "Created %s %d: %s\n", w.Type, w.ID, w.Title)
	},
}

var workListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work items in a project",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		projectID, _ := cmd.Flags().GetInt64("project")
		status, _ := cmd.Flags().GetString("status")
		filter := workItemFilterForProject(projectID)
		if status != "" {
			st := types.WorkItemStatus(status)
			filter.Status = &st
		}
		items, err := s.ListWorkItems(context.Background(), filter)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(items)
			return
		}
		for _, w := range items {
			fmt.Printf("%-5d %-8s %-10s p%-2d %s\n", w.ID, w.Type, w.Status, w.Priority, w.Title)
		}
	},
}

var workDependCmd = &cobra.Command{
	Use:   "depend <dependent-id> <depends-on-id>",
	Short: "Record that one work item depends on another",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		projectID, _ := cmd.Flags().GetInt64("project")
		sched := scheduler.New(s, bus, log)
		defer sched.Stop()
		if err := sched.AddDependency(context.Background(), projectID, parseID(args[0]), parseID(args[1])); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		fmt.Printf("%s now depends on %s\n", args[0], args[1])
	},
}

var workOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List work items whose parent is deleted or missing",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		projectID, _ := cmd.Flags().GetInt64("project")
		orphans, err := s.ListOrphans(context.Background(), projectID)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(orphans)
			return
		}
		for _, w := range orphans {
			fmt.Printf("%-5d %-8s %s (parent %d missing)\n", w.ID, w.Type, w.Title, *w.ParentID)
		}
	},
}

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Manage milestones",
}

var milestoneCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a milestone over a set of epics",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		projectID, _ := cmd.Flags().GetInt64("project")
		epicIDs, _ := cmd.Flags().GetInt64Slice("epics")
		version, _ := cmd.Flags().GetString("version")
		model := workmodel.New(s, bus, log)
		ms, err := model.CreateMilestone(context.Background(), projectID, args[0], epicIDs, version)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		printEntity(ms, "Created milestone %d: %s\n", ms.ID, ms.Name)
	},
}

var milestoneAchieveCmd = &cobra.Command{
	Use:   "achieve <id>",
	Short: "Mark a milestone achieved (all required epics completed)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		model := workmodel.New(s, bus, log)
		if err := model.AchieveMilestone(context.Background(), parseID(args[0])); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		fmt.Printf("Milestone %s achieved\n", args[0])
	},
}

func init() {
	workCreateCmd.Flags().Int64("project", 0, "project id")
	workCreateCmd.Flags().String("type", "task", "work item type (epic, story, task, subtask)")
	workCreateCmd.Flags().Int64("parent", 0, "parent work item id")
	workCreateCmd.Flags().Int("priority", 5, "priority 1-10")
	workCreateCmd.Flags().String("task-type", "", "fine-grained task type for turn budgeting")
	workCreateCmd.Flags().String("description", "", "description")
	_ = workCreateCmd.MarkFlagRequired("project")

	workListCmd.Flags().Int64("project", 0, "project id")
	workListCmd.Flags().String("status", "", "filter by status")
	_ = workListCmd.MarkFlagRequired("project")

	workDependCmd.Flags().Int64("project", 0, "project id")
	_ = workDependCmd.MarkFlagRequired("project")

	workOrphansCmd.Flags().Int64("project", 0, "project id")
	_ = workOrphansCmd.MarkFlagRequired("project")

	milestoneCreateCmd.Flags().Int64("project", 0, "project id")
	milestoneCreateCmd.Flags().Int64Slice("epics", nil, "required epic ids")
	milestoneCreateCmd.Flags().String("version", "", "version label")
	_ = milestoneCreateCmd.MarkFlagRequired("project")

	workCmd.AddCommand(workCreateCmd)
	workCmd.AddCommand(workListCmd)
	workCmd.AddCommand(workDependCmd)
	workCmd.AddCommand(workOrphansCmd)
	milestoneCmd.AddCommand(milestoneCreateCmd)
	milestoneCmd.AddCommand(milestoneAchieveCmd)
}

func workItemFilterForProject(projectID int64) store.WorkItemFilter {
	return store.WorkItemFilter{ProjectID: &projectID}
}
