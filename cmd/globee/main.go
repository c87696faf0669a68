package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/globee-labs/globee/cmd/globee/slackcmd"
	"github.com/globee-labs/globee/llm"
	"github.com/globee-labs/globee/providers/bedrock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "globee",
		Short:         "Globee is a Slack community bot for international student workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return initConfig(configPath)
		},
	}

	root.PersistentFlags().String("config", "", "Path to a config file (default: ./globee.yaml if present).")
	root.PersistentFlags().String("log-level", "info", "Log level: debug|info|warn|error.")
	root.PersistentFlags().String("log-format", "text", "Log format: text|json.")
	_ = viper.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(slackcmd.NewCommand(slackcmd.Dependencies{
		LoggerFromViper: loggerFromViper,
		CreateLLMClient: func(modelID, region string) (llm.Client, error) {
			return bedrock.New(bedrock.ClientOptions{ModelID: modelID, Region: region})
		},
	}))

	return root
}

func initConfig(configPath string) error {
	viper.SetEnvPrefix("GLOBEE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if strings.TrimSpace(configPath) != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configPath, err)
		}
		return nil
	}

	viper.SetConfigName("globee")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func loggerFromViper() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.level"))) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log.level: %s", viper.GetString("log.level"))
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.format"))) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log.format: %s", viper.GetString("log.format"))
	}
}
