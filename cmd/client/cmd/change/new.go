package change

import (
	"encoding/json"
	"fmt"
	"os"

	"propsync/cmd/client/cmd/output"
	"propsync/internal/app/client"
	"propsync/internal/domain/property"
	"propsync/internal/domain/sync"

	"github.com/spf13/cobra"
)

var (
	parcelID      string
	amount        float64
	acreage       float64
	assessedValue float64
	description   string
	county        string
	ownerName     string
	status        string
	appendTo      string
)

var NewCmd = &cobra.Command{
	Use:   "new",
	Short: "Создать изменение create для нового объекта",
	Long: `Собирает изменение create со свежим uuid и контрольной суммой.
Без --append изменение печатается, с --append дописывается в JSON-массив файла.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return err
		}

		payload := property.Payload{
			"parcel_id": parcelID,
			"amount":    amount,
		}
		flags := cmd.Flags()
		if flags.Changed("acreage") {
			payload["acreage"] = acreage
		}
		if flags.Changed("assessed-value") {
			payload["assessed_value"] = assessedValue
		}
		if description != "" {
			payload["description"] = description
		}
		if county != "" {
			payload["county"] = county
		}
		if ownerName != "" {
			payload["owner_name"] = ownerName
		}
		if status != "" {
			payload["status"] = status
		}

		change, err := app.NewChange(payload)
		if err != nil {
			return fmt.Errorf("некорректный объект: %w", err)
		}

		out := output.ForCommand(cmd)
		if appendTo == "" {
			return out.Result(change, func(p *output.Printer) {
				data, _ := json.MarshalIndent(change, "", "  ")
				p.Line("%s", data)
			})
		}

		total, err := appendChange(appendTo, change)
		if err != nil {
			return err
		}
		return out.Result(change, func(p *output.Printer) {
			p.Success("✓ Изменение %s добавлено в %s (всего: %d)", change.RecordID, appendTo, total)
		})
	},
}

func appendChange(path string, change sync.Change) (int, error) {
	changes := []sync.Change{}
	if _, err := os.Stat(path); err == nil {
		if changes, err = client.ReadChanges(path); err != nil {
			return 0, err
		}
	}
	changes = append(changes, change)

	data, err := json.MarshalIndent(changes, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(changes), nil
}

func init() {
	NewCmd.Flags().StringVar(&parcelID, "parcel-id", "", "кадастровый номер участка")
	NewCmd.Flags().Float64Var(&amount, "amount", 0, "цена")
	NewCmd.Flags().Float64Var(&acreage, "acreage", 0, "площадь в акрах")
	NewCmd.Flags().Float64Var(&assessedValue, "assessed-value", 0, "оценочная стоимость")
	NewCmd.Flags().StringVar(&description, "description", "", "описание")
	NewCmd.Flags().StringVar(&county, "county", "", "округ")
	NewCmd.Flags().StringVar(&ownerName, "owner-name", "", "владелец")
	NewCmd.Flags().StringVar(&status, "status", "", "new, reviewing, bid_ready, rejected или purchased")
	NewCmd.Flags().StringVar(&appendTo, "append", "", "дописать изменение в файл")
	_ = NewCmd.MarkFlagRequired("parcel-id")
	_ = NewCmd.MarkFlagRequired("amount")
}
