// Command certctl runs operator tasks against the certificate store:
// migrations, batch processing from the shell, tokens and the audit
// consumer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/app"
	"github.com/iliyamo/certificate-issuance/internal/config"
	"github.com/iliyamo/certificate-issuance/internal/logger"
)

var (
	envFile string
	cfg     config.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "certctl",
	Short:         "Certificate issuance operator tool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["config"] == "none" {
			return nil
		}
		if envFile != "" {
			config.LoadEnvFiles(envFile)
		} else {
			config.LoadEnvFiles()
		}
		cfg = config.Load()
		l, err := logger.New(cfg.Env, cfg.Debug)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	rootCmd.AddCommand(migrateCmd, uploadCmd, processCmd, archiveCmd, tokenCmd, hashPasswordCmd, consumeCmd)
}

// openApp connects without auto-migrating; migrate does that explicitly.
func openApp(ctx context.Context) (*app.App, error) {
	c := cfg
	c.AutoMigrate = false
	return app.Open(ctx, c, log)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
