package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/procurement-inbox/internal/credential"
	"github.com/nhle/procurement-inbox/internal/model"
	"github.com/nhle/procurement-inbox/internal/ui/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively write the config file and store the mailbox password",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}

		var password string
		if err := config.SetupForm(cfg, &password).Run(); err != nil {
			return fmt.Errorf("setup form: %w", err)
		}
		cfg.Mailbox.Username = strings.TrimSpace(cfg.Mailbox.Username)

		if err := model.SaveConfig(configPath, cfg); err != nil {
			return err
		}
		if err := storePassword(cfg.Mailbox.Username, password); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, renderKV("Config", configPath))
		fmt.Fprintln(os.Stdout, renderKV("Password", "stored in keyring as "+credential.MailboxKey(cfg.Mailbox.Username)))
		return nil
	},
}

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage secrets in the system keyring",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Prompt for the mailbox password and store it in the keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Mailbox.Username == "" {
			return fmt.Errorf("mailbox.username is not set in %s", configPath)
		}

		var password string
		if err := config.PasswordForm(cfg.Mailbox.Username, &password).Run(); err != nil {
			return fmt.Errorf("password prompt: %w", err)
		}
		if err := storePassword(cfg.Mailbox.Username, password); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, renderKV("Password", "stored in keyring as "+credential.MailboxKey(cfg.Mailbox.Username)))
		return nil
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored mailbox password",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		creds, err := credential.Open()
		if err != nil {
			return err
		}
		return creds.Delete(credential.MailboxKey(cfg.Mailbox.Username))
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialDeleteCmd)
}

func storePassword(username, password string) error {
	creds, err := credential.Open()
	if err != nil {
		return err
	}
	return creds.Set(credential.MailboxKey(username), password)
}
