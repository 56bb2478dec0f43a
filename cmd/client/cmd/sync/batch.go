package sync

import (
	"fmt"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"

	"github.com/spf13/cobra"
)

var (
	batchSize int
	batchFrom string
	batchAll  bool
)

var BatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Пакетная выгрузка записей по курсору",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		result, err := app.Batch(cmd.Context(), batchSize, batchFrom, batchAll)
		if err != nil {
			return fmt.Errorf("ошибка пакетной синхронизации: %w", err)
		}

		return output.ForCommand(cmd).Result(result, func(p *output.Printer) {
			p.Success("✓ Получено записей: %d (страниц: %d)", result.Records, result.Pages)
			if result.HasMoreData && result.NextBatchStart != nil {
				p.Field("Следующий курсор", *result.NextBatchStart)
			}
			if result.TotalRemaining != nil {
				p.Field("Осталось", *result.TotalRemaining)
			}
		})
	},
}

func init() {
	BatchCmd.Flags().IntVar(&batchSize, "size", 100, "размер страницы (1-1000)")
	BatchCmd.Flags().StringVar(&batchFrom, "from", "", "курсор: выгрузка начнется после этого id")
	BatchCmd.Flags().BoolVar(&batchAll, "all", false, "идти по курсорам до конца")
}
