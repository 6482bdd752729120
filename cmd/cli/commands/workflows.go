package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fieldline/automation-engine/internal/cli"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var activeOnly bool

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List workflows",
	Long: `List workflows registered with the engine.

Examples:
  automation workflows
  automation workflows --active-only
  automation workflows --json`,
	Run: func(cmd *cobra.Command, args []string) {
		client := cli.NewClient(viper.GetString("api.url"), viper.GetString("api.token"))

		if err := client.HealthCheck(); err != nil {
			fmt.Printf("API health check failed: %v\n", err)
			fmt.Println("Tip: make sure the API server is running")
			os.Exit(1)
		}

		workflows, err := client.GetWorkflows()
		if err != nil {
			fmt.Printf("Failed to get workflows: %v\n", err)
			os.Exit(1)
		}

		if activeOnly {
			filtered := workflows[:0]
			for _, w := range workflows {
				if w.Active {
					filtered = append(filtered, w)
				}
			}
			workflows = filtered
		}

		if outputJSON {
			data, err := json.MarshalIndent(workflows, "", "  ")
			if err != nil {
				fmt.Printf("Error encoding JSON: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		printWorkflowList(workflows)
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.Flags().BoolVar(&activeOnly, "active-only", false, "Show only active workflows")
}

func printWorkflowList(workflows []models.Workflow) {
	if len(workflows) == 0 {
		fmt.Println("No workflows found")
		return
	}

	fmt.Printf("Found %d workflow(s):\n\n", len(workflows))
	fmt.Printf("%-38s  %-30s  %-8s  %s\n", "ID", "NAME", "ACTIVE", "TRIGGER")
	for _, w := range workflows {
		fmt.Printf("%-38s  %-30s  %-8t  %s on %s\n",
			w.ID, truncate(w.Name, 30), w.Active,
			w.Definition.Trigger.Type, w.Definition.Trigger.Table,
		)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
