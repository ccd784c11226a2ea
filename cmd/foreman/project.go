package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Omar-Unpossible/claude-code-orchestrator-sub008/internal/types"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		desc, _ := cmd.Flags().GetString("description")
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir, _ = os.Getwd()
		}
		p := &types.Project{Name: args[0], Description: desc, WorkingDir: dir, Status: types.ProjectActive}
		if err := p.Validate(); err != nil {
			FatalError("%v", err)
		}
		if err := s.CreateProject(context.Background(), p); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		printEntity(p, "Created project %d: %s\n", p.ID, p.Name)
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		projects, err := s.ListProjects(context.Background())
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		if jsonOutput {
			printJSON(projects)
			return
		}
		for _, p := range projects {
			fmt.Printf("%-5d %-10s %s\n", p.ID, p.Status, p.Name)
		}
	},
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		id := parseID(args[0])
		if err := s.UpdateProject(context.Background(), id, map[string]any{"status": string(types.ProjectArchived)}); err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		fmt.Printf("Archived project %d\n", id)
	},
}

// projectManifest is the human-readable YAML export of a project and
// its work items, for review or migration.
type projectManifest struct {
	Project   *types.Project    `yaml:"project"`
	WorkItems []*types.WorkItem `yaml:"work_items"`
}

var projectExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a project and its work items as YAML",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		ctx := context.Background()
		id := parseID(args[0])
		p, err := s.GetProject(ctx, id)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		items, err := s.ListWorkItems(ctx, workItemFilterForProject(id))
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		out, err := yaml.Marshal(projectManifest{Project: p, WorkItems: items})
		if err != nil {
			FatalError("%v", err)
		}
		os.Stdout.Write(out)
	},
}

func init() {
	projectCreateCmd.Flags().String("description", "", "project description")
	projectCreateCmd.Flags().String("dir", "", "working directory (defaults to cwd)")
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectArchiveCmd)
	projectCmd.AddCommand(projectExportCmd)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		FatalError("invalid id %q", s)
	}
	return id
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func printEntity(v any, format string, args ...any) {
	if jsonOutput {
		printJSON(v)
		return
	}
	fmt.Printf(format, args...)
}
