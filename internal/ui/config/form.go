// Package config builds the interactive setup forms used by the CLI.
package config

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/procurement-inbox/internal/model"
)

const formWidth = 72

// SetupForm collects the mailbox and database settings into cfg. The
// mailbox password goes to password so it can be stored in the keyring
// rather than the config file.
func SetupForm(cfg *model.AppConfig, password *string) *huh.Form {
	if cfg.Mailbox.Port == "" {
		cfg.Mailbox.Port = "993"
	}
	if cfg.Mailbox.Folder == "" {
		cfg.Mailbox.Folder = "INBOX"
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Description("IMAP server hostname").
				Placeholder("imap.example.com").
				Value(&cfg.Mailbox.Host).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Description("IMAP server port (e.g., 993)").
				Placeholder("993").
				Value(&cfg.Mailbox.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("Procurement mailbox login").
				Placeholder("procurement@example.com").
				Value(&cfg.Mailbox.Username).
				Validate(validateUsername),
			huh.NewInput().
				Title("Password").
				Description("Mailbox password or app password, stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(validateRequired("Password")),
			huh.NewInput().
				Title("Folder").
				Description("Mailbox folder to poll").
				Placeholder("INBOX").
				Value(&cfg.Mailbox.Folder).
				Validate(validateRequired("Folder")),
			huh.NewConfirm().
				Title("Use TLS").
				Description("Implicit TLS; No uses STARTTLS").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.Mailbox.TLS),
		).Title("Mailbox"),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database").
				Description("Where RFPs, proposals and the email log are stored").
				Options(
					huh.NewOption("SQLite - single file, no server", "sqlite"),
					huh.NewOption("PostgreSQL", "postgres"),
				).
				Value(&cfg.Database.Driver),
			huh.NewInput().
				Title("Data source").
				Description("SQLite file path or Postgres connection URL").
				Value(&cfg.Database.DSN).
				Validate(validateRequired("Data source")),
		).Title("Storage"),
	).WithWidth(formWidth)
}

// PasswordForm prompts for the mailbox password of username.
func PasswordForm(username string, password *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Password for " + username).
				Description("Stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(validateRequired("Password")),
		),
	).WithWidth(formWidth)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// validateUsername accepts plain logins and email addresses, but rejects
// strings that look like a malformed address.
func validateUsername(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Username is required")
	}
	if strings.Contains(s, "@") {
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Errorf("invalid email address: %w", err)
		}
	}
	return nil
}
