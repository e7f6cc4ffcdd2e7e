package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/cmdgate/internal/audit"
	"github.com/opencode-ai/cmdgate/internal/config"
	"github.com/opencode-ai/cmdgate/internal/settings"
	"github.com/opencode-ai/cmdgate/internal/storage"
)

var (
	auditDir   string
	auditLimit int
	auditSince string
	auditPrune bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail for a project",
	Long: `Print audit entries for a project, newest first.

With --prune, expired entries are removed per the project's retention
policy instead of being listed.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditDir, "directory", "", "Project directory")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to print (0 for all)")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "Only entries at or after this RFC 3339 timestamp")
	auditCmd.Flags().BoolVar(&auditPrune, "prune", false, "Remove expired entries instead of listing")
}

func runAudit(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(auditDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	store := storage.New(cfg.DataDir)
	auditLog := audit.NewLogger(store)
	ctx := context.Background()

	if auditPrune {
		retention := settings.NewStore(store).Get(ctx, workDir).AuditLogRetentionDays
		removed, err := auditLog.PruneExpired(ctx, workDir, retention)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d expired entries\n", removed)
		return nil
	}

	opts := audit.QueryOptions{Limit: auditLimit}
	if auditSince != "" {
		since, err := time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		opts.Since = since
	}

	entries, err := auditLog.Query(ctx, workDir, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
