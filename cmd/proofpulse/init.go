package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/proofpulse/internal/config"
	"github.com/menta2k/proofpulse/internal/utils"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Initialize writes the default configuration as YAML.

API keys are never written; supply them through GEMINI_API_KEY,
GOOGLE_API_KEY or OPENAI_API_KEY, either in the environment or a .env file.

Examples:
  # Create the file in the XDG config directory
  proofpulse init

  # Create config file at a specific path
  proofpulse init -o proofpulse.yaml

  # Force overwrite existing file
  proofpulse init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", "", "Output file path (default: "+config.GetConfigPath()+")")
	cmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if outputPath == "" {
		outputPath = config.GetConfigPath()
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if !force && utils.FileExists(outputPath) {
		return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
	}

	if err := config.Default().SaveToFile(outputPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", outputPath)
	return nil
}
