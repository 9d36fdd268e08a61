package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fluxmail/handlers/api"
	"fluxmail/storage"
	"fluxmail/utils"
)

var importLang string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import credential lines from a file, one account per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		db, err := storage.InitDB(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		localizer := utils.GetLocalizer(importLang)
		result := api.ImportCredentials(storage.NewAccountStorage(db), string(data), localizer)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, utils.TWithData(localizer, "import.summary", map[string]interface{}{
			"Success": result.Success,
			"Failed":  result.Failed,
		}))
		for _, acc := range result.Accounts {
			fmt.Fprintf(out, "  %s\t%s\t%s\n", acc.Email, acc.Login, acc.Password)
		}
		for _, msg := range result.Errors {
			fmt.Fprintf(out, "  ! %s\n", msg)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importLang, "lang", "en", "language of error messages")
}
