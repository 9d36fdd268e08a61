package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fluxmail/config"
	"fluxmail/utils"
)

var cfgFile string

var mainCmd = &cobra.Command{
	Use:           "fluxmail",
	Short:         "Webmail for Outlook mailboxes imported from credential lines",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serveCmd.RunE,
}

func init() {
	mainCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "config file")
	mainCmd.AddCommand(serveCmd)
	mainCmd.AddCommand(importCmd)
}

// loadConfig reads the configuration and applies the log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	level, err := utils.ParseLevel(cfg.Log.Level)
	if err != nil {
		utils.Log.Warn("%v, using %s", err, level)
	}
	utils.Log.SetLevel(level)

	if err := utils.InitI18n(); err != nil {
		return nil, fmt.Errorf("failed to initialize i18n: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		utils.Log.Error("%v", err)
		os.Exit(1)
	}
}
