package sync

import (
	"fmt"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"

	"github.com/spf13/cobra"
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Статус синхронизации устройства",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		status, err := app.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка получения статуса: %w", err)
		}

		return output.ForCommand(cmd).Result(status, func(p *output.Printer) {
			p.Title("=== Статус синхронизации %s ===", status.DeviceID)
			if status.LastSyncTimestamp != nil {
				p.Field("Последняя успешная", status.LastSyncTimestamp.Format("2006-01-02 15:04:05"))
			} else {
				p.Field("Последняя успешная", "никогда")
			}
			p.Field("Ожидают загрузки", status.PendingChanges)
			p.Field("Неразрешенных конфликтов", status.UnresolvedConflicts)
			p.Field("Алгоритм совместим", status.AlgorithmCompatible)
			if status.IsSyncRequired {
				p.Warn("Требуется синхронизация")
			} else {
				p.Success("Данные актуальны")
			}
		})
	},
}
