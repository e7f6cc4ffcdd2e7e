package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/cmdgate/internal/classify"
	"github.com/opencode-ai/cmdgate/internal/config"
	"github.com/opencode-ai/cmdgate/internal/policy"
	"github.com/opencode-ai/cmdgate/internal/settings"
	"github.com/opencode-ai/cmdgate/internal/storage"
)

var checkDir string

var checkCmd = &cobra.Command{
	Use:   "check [command...]",
	Short: "Classify a command and show the policy verdict",
	Long: `Classify a package manager command offline and print what the
daemon would decide for it, without creating an approval request.

Example:
  cmdgate check npm install left-pad`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDir, "directory", "", "Project directory whose policy applies")
}

// checkOutput is the JSON shape printed by 'cmdgate check'.
type checkOutput struct {
	Classification classify.Command           `json:"classification"`
	Decision       policy.Decision            `json:"decision"`
	Settings       policy.NpmSecuritySettings `json:"settings"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(checkDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	classified := classify.Classify(command)

	store := storage.New(cfg.DataDir)
	projectSettings := settings.NewStore(store).Get(context.Background(), workDir)

	decision := policy.Decide(classified, projectSettings, false)
	classified.RiskLevel = decision.RiskLevel
	classified.RequiresApproval = decision.RequiresApproval

	out := checkOutput{
		Classification: classified,
		Decision:       decision,
		Settings:       projectSettings,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
