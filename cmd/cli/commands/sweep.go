package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fieldline/automation-engine/internal/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retry sweep",
	Long: `Requeue failed executions whose cool-down and backoff windows have
elapsed. The server runs the same sweep on a timer; this command forces one
immediately.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := cli.NewClient(viper.GetString("api.url"), viper.GetString("api.token"))

		result, err := client.Sweep()
		if err != nil {
			fmt.Printf("Sweep failed: %v\n", err)
			os.Exit(1)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
			return
		}

		fmt.Printf("Sweep finished: %d requeued, %d still waiting\n", result.Requeued, result.Waiting)
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch pending executions",
	Long:  `Claim and run a batch of pending executions immediately.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := cli.NewClient(viper.GetString("api.url"), viper.GetString("api.token"))

		dispatched, err := client.DispatchPending()
		if err != nil {
			fmt.Printf("Dispatch failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Dispatched %d execution(s)\n", dispatched)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(dispatchCmd)
}
