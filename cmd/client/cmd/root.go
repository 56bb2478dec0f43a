package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"propsync/internal/app/client"
	"propsync/internal/app/client/config"
	"propsync/internal/utils/logger"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var (
	cfgFile    string
	serverURL  string
	deviceID   string
	debug      bool
	jsonOutput bool
	app        *client.App
)

var rootCmd = &cobra.Command{
	Use:   "propsync",
	Short: "Propsync - клиент синхронизации объектов недвижимости",
	Long: `Propsync — клиент граничного устройства для синхронизации объектов
недвижимости с сервером.

Клиент отправляет локальные изменения, получает серверную дельту,
выгружает полный снимок или страницы по курсору и хранит копию
записей в локальной базе SQLite.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Флаги командной строки важнее файла и окружения
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if deviceID != "" {
		cfg.DeviceID = deviceID
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if debug {
		log = logger.New(cfg.Env)
	}

	app, err = client.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(client.NewContext(cmd.Context(), app))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл (по умолчанию ~/.propsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера синхронизации")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device", "", "идентификатор устройства")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный журнал")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")
}
