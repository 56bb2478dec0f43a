package sync

import (
	"fmt"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"

	"github.com/spf13/cobra"
)

var includeDeleted bool

var FullCmd = &cobra.Command{
	Use:   "full",
	Short: "Полная синхронизация",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		result, err := app.Full(cmd.Context(), includeDeleted)
		if err != nil {
			return fmt.Errorf("ошибка полной синхронизации: %w", err)
		}

		return output.ForCommand(cmd).Result(result, func(p *output.Printer) {
			if !result.Response.AlgorithmCompatible {
				p.Fail("✗ Алгоритм несовместим: %s", result.Response.CompatibilityMessage)
				return
			}
			p.Success("✓ Полная синхронизация завершена")
			p.Field("Записей на сервере", result.Response.TotalCount)
			p.Field("Сохранено локально", result.Stored)
			p.Field("Помечено удаленными", result.Deleted)
		})
	},
}

func init() {
	FullCmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "получить идентификаторы удаленных записей")
}
