package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/certificate-issuance/internal/database"
	"github.com/iliyamo/certificate-issuance/internal/queue"
	"github.com/iliyamo/certificate-issuance/internal/utils"
)

var (
	migrateLegacy bool
	uploadTplID   int64
	tokenTTL      int
	tokenSubject  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		layout := database.LayoutCurrent
		if migrateLegacy {
			layout = database.LayoutLegacy
		}
		if err := database.Migrate(cmd.Context(), a.DB, a.Dialect, layout); err != nil {
			return err
		}
		log.Info("schema migrated", zap.String("dialect", string(a.Dialect)), zap.Bool("legacy", migrateLegacy))
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "process-batch <file>",
	Short: "Store a spreadsheet and issue its certificates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		var tpl *int64
		if uploadTplID > 0 {
			tpl = &uploadTplID
		}
		u, err := a.Uploads.SaveFile(cmd.Context(), tpl, args[0])
		if err != nil {
			return err
		}
		report, err := a.Pipeline.Process(cmd.Context(), u.ID)
		if err != nil {
			return fmt.Errorf("upload %d: %w", u.ID, err)
		}
		return printJSON(cmd, report)
	},
}

var processCmd = &cobra.Command{
	Use:   "process <upload-id>",
	Short: "Retry an unprocessed upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid upload id %q", args[0])
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		report, err := a.Pipeline.Process(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <code>...",
	Short: "Write certificate PDFs to the archive directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		for _, code := range args {
			path, err := a.Issuer.Archive(cmd.Context(), strings.TrimSpace(code))
			if err != nil {
				return fmt.Errorf("%s: %w", code, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an administrator access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub := tokenSubject
		if sub == "" {
			sub = cfg.AdminUser
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.AccessTTLMin
		}
		tok, err := utils.NewAccessToken(cfg.JWTSecret, sub, utils.RoleAdmin, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:         "hash-password <password>",
	Short:       "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"config": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := utils.HashPassword(args[0], bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), h)
		return nil
	},
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Append issuance events to the audit log until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := &queue.AuditConsumer{URL: cfg.RabbitURL, LogDir: cfg.AuditLogDir, Log: log.Named("audit")}
		return c.Run(cmd.Context())
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateLegacy, "legacy", false, "create the legacy column layout")
	uploadCmd.Flags().Int64Var(&uploadTplID, "template", 0, "template id (default: active template)")
	tokenCmd.Flags().IntVar(&tokenTTL, "ttl", 0, "lifetime in minutes (default ACCESS_TOKEN_TTL_MIN)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject (default ADMIN_USER)")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

