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

var statusFilter string

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List execution logs",
	Long: `List execution logs, newest first.

Examples:
  automation executions
  automation executions --status failed
  automation executions --json`,
	Run: func(cmd *cobra.Command, args []string) {
		client := cli.NewClient(viper.GetString("api.url"), viper.GetString("api.token"))

		executions, err := client.GetExecutions(statusFilter)
		if err != nil {
			fmt.Printf("Failed to get executions: %v\n", err)
			os.Exit(1)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(executions, "", "  ")
			fmt.Println(string(data))
			return
		}

		printExecutionList(executions)
	},
}

func init() {
	rootCmd.AddCommand(executionsCmd)
	executionsCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, running, completed, failed)")
}

func printExecutionList(executions []models.ExecutionLog) {
	if len(executions) == 0 {
		fmt.Println("No executions found")
		return
	}

	fmt.Printf("Found %d execution(s):\n\n", len(executions))
	fmt.Printf("%-38s  %-38s  %-10s  %-8s  %s\n", "ID", "WORKFLOW", "STATUS", "ATTEMPTS", "EVENT")
	for _, e := range executions {
		fmt.Printf("%-38s  %-38s  %-10s  %-8d  %s\n",
			e.ID, e.WorkflowID, e.Status, e.Attempts, truncate(e.EventID, 24))
	}
}
