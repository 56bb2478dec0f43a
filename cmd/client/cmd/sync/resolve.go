package sync

import (
	"fmt"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"
	"propsync/internal/domain/sync"

	"github.com/spf13/cobra"
)

var (
	strategy      string
	conflictsFile string
)

var ResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Разрешить конфликты",
	Long: `Отправляет разрешения конфликтов из файла. Файл содержит JSON-массив конфликтов
в том виде, в каком их вернула дельта-синхронизация. Флаг --strategy задает
стратегию для всех конфликтов, иначе используется поле resolution каждого.`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		switch sync.Strategy(strategy) {
		case "", sync.UseLocal, sync.UseRemote, sync.Merge:
			return nil
		default:
			return fmt.Errorf("неизвестная стратегия %q: допустимы use_local, use_remote, merge", strategy)
		}
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		conflicts, err := client.ReadConflicts(conflictsFile)
		if err != nil {
			return err
		}

		resp, err := app.Resolve(cmd.Context(), sync.Strategy(strategy), conflicts)
		if err != nil {
			return fmt.Errorf("ошибка разрешения конфликтов: %w", err)
		}

		return output.ForCommand(cmd).Result(resp, func(p *output.Printer) {
			if resp.RemainingCount == 0 {
				p.Success("✓ Разрешено конфликтов: %d", resp.ResolvedCount)
			} else {
				p.Warn("⚠ Разрешено: %d, осталось: %d", resp.ResolvedCount, resp.RemainingCount)
			}
			for _, e := range resp.Errors {
				p.Fail("  • %s", e)
			}
		})
	},
}

func init() {
	ResolveCmd.Flags().StringVar(&strategy, "strategy", "", "use_local, use_remote или merge")
	ResolveCmd.Flags().StringVar(&conflictsFile, "conflicts", "", "файл с JSON-массивом конфликтов")
	_ = ResolveCmd.MarkFlagRequired("conflicts")
}
