package sync

import (
	"fmt"
	"text/tabwriter"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"
	"propsync/internal/domain/sync"

	"github.com/spf13/cobra"
)

var (
	logsPage     int
	logsPageSize int
)

var LogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Журнал синхронизации устройства",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		logs, err := app.Logs(cmd.Context(), logsPage, logsPageSize)
		if err != nil {
			return fmt.Errorf("ошибка получения журнала: %w", err)
		}

		return output.ForCommand(cmd).Result(logs, func(p *output.Printer) {
			if len(logs.Logs) == 0 {
				p.Line("Записи журнала не найдены")
				return
			}
			p.Title("Страница %d, всего записей: %d", logs.Page, logs.TotalCount)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "НАЧАЛО\tОПЕРАЦИЯ\tСТАТУС\tЗАПИСЕЙ\tКОНФЛИКТОВ\tСЕК")
			for _, l := range logs.Logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.3f\n",
					l.StartedAt.Format("2006-01-02 15:04:05"), l.Operation, statusMark(l.Status),
					l.RecordsProcessed, l.ConflictsDetected, l.DurationSeconds)
			}
			_ = w.Flush()
		})
	},
}

func statusMark(s sync.LogStatus) string {
	switch s {
	case sync.StatusSuccess:
		return "✓ " + string(s)
	case sync.StatusFailed:
		return "✗ " + string(s)
	default:
		return "⚠ " + string(s)
	}
}

func init() {
	LogsCmd.Flags().IntVar(&logsPage, "page", 1, "номер страницы")
	LogsCmd.Flags().IntVar(&logsPageSize, "page-size", 20, "размер страницы (1-100)")
}
