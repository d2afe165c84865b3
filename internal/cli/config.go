package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smsgate/smsgate/internal/cli/ui"
	"github.com/smsgate/smsgate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print resolved configuration",
	Long: `Load and print the resolved smsgate configuration as TOML.
Shows the result of merging defaults, smsgate.toml, environment variables, and flags.`,
	RunE: runConfig,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long: `Get a specific configuration value by dotted key path.
Examples: server.port, routing.strategy, retry.max_attempts, gateways.mts.backend`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in smsgate.toml",
	Long: `Set a configuration value in the smsgate.toml config file.
Creates the file if it doesn't exist.
Examples:
  smsgate config set server.port 9000
  smsgate config set retry.enabled true
  smsgate config set gateways.megafon.backend ledger
  smsgate config set gateways.megafon.path smsgate.db`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default smsgate.toml",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
}

func configFilePath(cmd *cobra.Command) string {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return config.DefaultFileName
	}
	return configPath
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(cfg)
	}

	out, err := cfg.ToTOML()
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}
	fmt.Print(out)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	value, err := config.GetValue(cfg, args[0])
	if err != nil {
		return err
	}

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"key": args[0], "value": value})
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	configPath := configFilePath(cmd)
	key, value := args[0], args[1]

	if !config.IsValidKey(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := config.SetValue(configPath, key, value); err != nil {
		return fmt.Errorf("setting config value: %w", err)
	}

	fmt.Printf("%s = %s\n", key, value)
	fmt.Printf("Written to %s\n", configPath)

	// Only warn: gateway tables are usually filled in one key at a time.
	if _, err := config.Load(configPath, nil); err != nil {
		msg := err.Error()
		if parts := strings.SplitN(msg, ": ", 2); len(parts) > 1 {
			msg = parts[1]
		}
		fmt.Fprint(os.Stderr, ui.FormatWarning(msg))
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFilePath(cmd)
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := config.GenerateDefault(configPath); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	fmt.Printf("%s Wrote %s\n", ui.StyleSuccess.Render(ui.SymbolCheck), configPath)
	return nil
}
