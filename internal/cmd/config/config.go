// Package config provides CLI commands for managing collabd configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	appconfig "github.com/Iron-Ham/collabd/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify collabd configuration",
	Long: `View or modify collabd configuration.

Use 'config show' to display the effective configuration.
Use subcommands to modify settings or create a config file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  collabd config set lock.duration_minutes 10
  collabd config set lock.enforce true
  collabd config set logging.level debug
  collabd config set gateway.allowed_origins "https://*.example.com,http://localhost:*"

List values are comma separated. The resulting configuration is validated
before it is written. Run 'collabd config show' to see every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at $XDG_CONFIG_HOME/collabd/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configResetCmd = &cobra.Command{
	Use:   "reset [key]",
	Short: "Reset configuration to defaults",
	Long: `Reset configuration values to their defaults.

Without arguments, resets all configuration to defaults.
With a key argument, resets only that specific key.

Examples:
  collabd config reset                       # Reset all to defaults
  collabd config reset lock.duration_minutes # Reset only lock.duration_minutes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigReset,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configResetCmd)
}

// Register adds all config-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// sectionComments head each top-level section written by 'config init'.
var sectionComments = map[string]string{
	"server":  "HTTP listener",
	"gateway": "Websocket gateway. Identity headers are injected by the authenticating proxy.\nallowed_origins takes glob patterns, e.g. https://*.example.com; empty means same host only.",
	"session": "Session lifetime. Empty sessions are evicted after idle_timeout_minutes.",
	"lock":    "Field locks. duration_minutes is applied live when this file changes.\nenforce rejects changes to fields locked by another user.",
	"logging": "Structured JSON logging. level is applied live when this file changes.\nLevels: debug, info, warn, error. Empty dir logs to stderr.",
}

// renderYAML encodes cfg, optionally with section comments.
func renderYAML(cfg *appconfig.Config, commented bool) ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return nil, err
	}
	if commented && node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if c, ok := sectionComments[node.Content[i].Value]; ok {
				node.Content[i].HeadComment = c
			}
		}
		node.HeadComment = "collabd configuration"
	}
	return yaml.Marshal(&node)
}

// flatten returns every leaf key of cfg in dot notation with its value.
func flatten(cfg *appconfig.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	out := make(map[string]any)
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		if m, ok := v.(map[string]any); ok {
			for k, child := range m {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, child)
			}
			return
		}
		out[prefix] = v
	}
	walk("", tree)
	return out, nil
}

// parseValue converts raw to the type of the key's default value.
func parseValue(key, raw string, def any) (any, error) {
	switch def.(type) {
	case bool:
		if raw != "true" && raw != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return raw == "true", nil
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case []any:
		list := []string{}
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		return list, nil
	default:
		return raw, nil
	}
}

// writeConfig validates the current viper state and writes it to the
// user's config file.
func writeConfig() (string, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return "", err
	}

	data, err := renderYAML(cfg, true)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(appconfig.ConfigDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	configFile := appconfig.ConfigFile()
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configFile, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := renderYAML(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	defaults, err := flatten(appconfig.Default())
	if err != nil {
		return err
	}
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nValid keys: %s", key, strings.Join(sortedKeys(defaults), ", "))
	}

	value, err := parseValue(key, raw, def)
	if err != nil {
		return err
	}
	viper.Set(key, value)

	configFile, err := writeConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, value)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'collabd config set' to modify values", configFile)
	}
	if err := os.MkdirAll(appconfig.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := renderYAML(appconfig.Default(), true)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize collabd's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	printSearchPaths(out)
	return nil
}

func printSearchPaths(out io.Writer) {
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/collabd/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_LOCK_DURATION_MINUTES)\n",
		appconfig.EnvPrefix, appconfig.EnvPrefix)
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	defaults, err := flatten(appconfig.Default())
	if err != nil {
		return err
	}

	if len(args) == 1 {
		key := args[0]
		def, ok := defaults[key]
		if !ok {
			return fmt.Errorf("unknown configuration key: %s", key)
		}
		viper.Set(key, def)
	} else {
		for key, def := range defaults {
			viper.Set(key, def)
		}
	}

	configFile, err := writeConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		fmt.Fprintf(out, "Reset %s to default\n", args[0])
	} else {
		fmt.Fprintln(out, "Reset all configuration to defaults")
	}
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
