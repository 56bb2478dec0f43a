package cmd

import (
	"fmt"

	"propsync/cmd/client/cmd/change"
	"propsync/cmd/client/cmd/output"
	"propsync/cmd/client/cmd/sync"
	"propsync/internal/app/client"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Проверить соединение с сервером",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		out := output.ForCommand(cmd)
		if err := app.CheckConnection(cmd.Context()); err != nil {
			return fmt.Errorf("сервер недоступен: %w", err)
		}
		return out.Result(map[string]string{"status": "OK"}, func(p *output.Printer) {
			p.Success("✓ Соединение с сервером установлено")
		})
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)

	rootCmd.AddCommand(sync.SyncCmd)
	sync.SyncCmd.AddCommand(sync.DeltaCmd)
	sync.SyncCmd.AddCommand(sync.FullCmd)
	sync.SyncCmd.AddCommand(sync.BatchCmd)
	sync.SyncCmd.AddCommand(sync.StatusCmd)
	sync.SyncCmd.AddCommand(sync.LogsCmd)
	sync.SyncCmd.AddCommand(sync.MetricsCmd)
	sync.SyncCmd.AddCommand(sync.ResolveCmd)

	rootCmd.AddCommand(change.ChangeCmd)
	change.ChangeCmd.AddCommand(change.NewCmd)
}
