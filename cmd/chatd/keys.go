package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/chatd/internal/secrets"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage Gemini API keys",
}

// keysEncryptCmd turns a plaintext API key into an "enc:" value for
// ai.api_keys.
var keysEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt an API key for the config file",
	Long: `Prompt for an API key and print it encrypted with the secrets password
(CHATD_SECRETS_PASSWORD or an interactive prompt). Paste the output into
ai.api_keys; chatd serve decrypts it at startup.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := promptForPassword("API key: ")
		if err != nil {
			return err
		}
		if key == "" {
			return errors.New("empty API key")
		}

		password := os.Getenv(secretsPasswordEnv)
		if password == "" {
			if password, err = promptForPassword("Encryption password: "); err != nil {
				return err
			}
			confirm, err := promptForPassword("Repeat encryption password: ")
			if err != nil {
				return err
			}
			if confirm != password {
				return errors.New("passwords do not match")
			}
		}
		if password == "" {
			return errors.New("empty encryption password")
		}

		value, err := secrets.EncryptString(key, password)
		if err != nil {
			return fmt.Errorf("failed to encrypt key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysEncryptCmd)
}
