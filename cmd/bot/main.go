// Package main starts the chat bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rubot/internal/app/runtime"
	"rubot/internal/infrastructure/config"
	"rubot/internal/logger"
)

var (
	configPath string
	logLevel   string
	logFile    string
	version    = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:     "rubot",
	Short:   "Chat bot with runtime-loadable command plugins",
	Version: version,
	RunE:    run,
	// config errors are reported once by main
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
}

func run(cmd *cobra.Command, _ []string) error {
	if err := logger.Configure(logLevel, logFile); err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.Start(ctx, runtime.Options{ConfigPath: configPath})
	if err != nil {
		return err
	}

	<-rt.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return rt.Stop(shutdownCtx)
}
