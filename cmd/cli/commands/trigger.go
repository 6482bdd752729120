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

var triggerCmd = &cobra.Command{
	Use:   "trigger <event-file>",
	Short: "Submit a mutation event for trigger detection",
	Long: `Read a mutation event from a JSON file and submit it to the engine.
Replaying the same event id is safe; already-enqueued workflows are skipped.

Example event file:
  {
    "event_id": "evt-123",
    "type": "update",
    "table": "jobs",
    "before": {"status": "scheduled"},
    "after": {"status": "completed"}
  }`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Printf("Failed to read event file: %v\n", err)
			os.Exit(1)
		}

		var event models.MutationEvent
		if err := json.Unmarshal(data, &event); err != nil {
			fmt.Printf("Invalid event JSON: %v\n", err)
			os.Exit(1)
		}

		client := cli.NewClient(viper.GetString("api.url"), viper.GetString("api.token"))

		result, err := client.TriggerMutation(&event)
		if err != nil {
			fmt.Printf("Failed to submit event: %v\n", err)
			os.Exit(1)
		}

		if outputJSON {
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(out))
			return
		}

		fmt.Printf("Event %s processed: %d execution(s) enqueued, %d skipped\n",
			result.EventID, len(result.Enqueued), result.Skipped)
		for _, id := range result.Enqueued {
			fmt.Printf("  - %s\n", id)
		}
	},
}

func init() {
	rootCmd.AddCommand(triggerCmd)
}
