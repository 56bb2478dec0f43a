package change

import "github.com/spf13/cobra"

var ChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Подготовка файлов изменений",
}
