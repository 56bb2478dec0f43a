package sync

import (
	"fmt"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"
	"propsync/internal/domain/sync"

	"github.com/spf13/cobra"
)

var (
	changesFile   string
	retryRejected bool
)

var DeltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Отправить изменения и получить серверную дельту",
	Long: `Читает JSON-массив изменений из файла и отправляет их вместе с отметкой
последней синхронизации. Без --changes отправляется пустой набор, и команда
просто забирает серверные изменения.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		changes := []sync.Change{}
		if changesFile != "" {
			if changes, err = client.ReadChanges(changesFile); err != nil {
				return err
			}
		}

		result, err := app.Delta(cmd.Context(), changes, retryRejected)
		if err != nil {
			return fmt.Errorf("ошибка дельта-синхронизации: %w", err)
		}

		return output.ForCommand(cmd).Result(result, func(p *output.Printer) {
			printDelta(p, result.Response)
			if result.Retry != nil {
				p.Line("")
				p.Title("Повторная отправка отклоненных изменений")
				printDelta(p, result.Retry)
			}
			p.Field("Сохранено в локальную копию", result.Applied)
			if result.Pages > 1 {
				p.Field("Запросов дельты", result.Pages)
			}
		})
	},
}

func printDelta(p *output.Printer, resp *sync.DeltaSyncResponse) {
	switch resp.Status {
	case sync.StatusSuccess:
		p.Success("✓ Синхронизация завершена")
	case sync.StatusConflict:
		p.Warn("⚠ Обнаружены конфликты: %d", resp.ConflictsCount)
	case sync.StatusPartial:
		p.Warn("⚠ Изменения применены частично")
	default:
		p.Fail("✗ Синхронизация не выполнена")
	}
	if !resp.AlgorithmCompatible {
		p.Fail("Алгоритм несовместим: %s", resp.CompatibilityMessage)
	}

	p.Field("Применено", resp.ChangesApplied)
	p.Field("Отклонено", resp.ChangesRejected)
	p.Field("Получено с сервера", resp.ServerChangesCount)
	p.Field("Новая отметка", resp.NewSyncTimestamp.Format("2006-01-02 15:04:05.000000"))

	for i, r := range resp.RejectedDetails {
		if i == 5 {
			p.Line("  ... и еще %d", len(resp.RejectedDetails)-5)
			break
		}
		p.Line("  • %s (%s): %s", r.RecordID, r.ErrorCode, r.Reason)
	}
	for _, c := range resp.Conflicts {
		p.Line("  ⚡ %s: поля %v", c.RecordID, c.ConflictFields)
	}
}

func init() {
	DeltaCmd.Flags().StringVar(&changesFile, "changes", "", "файл с JSON-массивом изменений")
	DeltaCmd.Flags().BoolVar(&retryRejected, "retry-rejected", false, "повторить восстановимые отклонения один раз")
}
