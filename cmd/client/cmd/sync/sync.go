package sync

import (
	"github.com/spf13/cobra"
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Синхронизация с сервером",
	Long: `Синхронизация записей между устройством и сервером.

Дельта отправляет локальные изменения и получает серверные изменения
с момента последней синхронизации. Полная и пакетная синхронизация
заполняют локальную копию. Команды status, logs и metrics показывают
состояние устройства на сервере.`,
}
