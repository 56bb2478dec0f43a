package sync

import (
	"fmt"
	"sort"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"

	"github.com/spf13/cobra"
)

var MetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Метрики синхронизации за последние 7 дней",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		m, err := app.Metrics(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка получения метрик: %w", err)
		}

		return output.ForCommand(cmd).Result(m, func(p *output.Printer) {
			p.Title("📊 Последняя синхронизация")
			p.Field("Операция", m.SyncOperation)
			p.Field("Статус", m.Status)
			p.Field("Время", m.LastSyncAt.Format("2006-01-02 15:04:05"))
			p.Field("Длительность, сек", fmt.Sprintf("%.3f", m.DurationSeconds))
			p.Field("Обработано", m.RecordsProcessed)
			p.Field("Успешно", m.RecordsSuccessful)
			p.Field("С конфликтом", m.RecordsFailed)
			p.Field("Проверка алгоритма", m.AlgorithmValidationPassed)

			p.Title("📈 За окно наблюдения")
			p.Field("Синхронизаций", m.WindowSyncs)
			p.Field("Успешных", m.WindowSuccessful)
			p.Field("Неудачных", m.WindowFailed)
			p.Field("С конфликтами", m.WindowConflicts)
			p.Field("Средняя длительность, сек", fmt.Sprintf("%.3f", m.AvgDurationSeconds))

			if len(m.ErrorsByCode) > 0 {
				codes := make([]string, 0, len(m.ErrorsByCode))
				for code := range m.ErrorsByCode {
					codes = append(codes, code)
				}
				sort.Strings(codes)
				p.Title("Ошибки по кодам")
				for _, code := range codes {
					p.Field(code, m.ErrorsByCode[code])
				}
			}
		})
	},
}
