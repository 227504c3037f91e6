package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/tresor/config"
	"github.com/unkn0wn-root/tresor/httpapi"
	"github.com/unkn0wn-root/tresor/tag"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Print the tag for a (path, key) pair or the hash of a user email",
	Example: `  tresor tag --path "Grade9/Math" --key note
  tresor tag --email someone@example.org`,
	RunE: runTag,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed API token for an email (development and operations)",
	RunE:  runToken,
}

func init() {
	tagCmd.Flags().String("salt", "", "salt (default from config)")
	tagCmd.Flags().String("path", "", "entry path")
	tagCmd.Flags().String("key", "", "entry key")
	tagCmd.Flags().String("email", "", "user email")

	tokenCmd.Flags().String("email", "", "user email")
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.Flags().Bool("teacher", false, "teacher claim")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}

func runTag(cmd *cobra.Command, _ []string) error {
	salt, _ := cmd.Flags().GetString("salt")
	if salt == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		salt = cfg.Salt
	}
	if salt == "" {
		return errors.New("no salt: pass --salt or set TRESOR_SALT")
	}
	c := tag.New(salt)

	if email, _ := cmd.Flags().GetString("email"); email != "" {
		fmt.Fprintln(cmd.OutOrStdout(), c.User(email))
		return nil
	}
	if !cmd.Flags().Changed("path") && !cmd.Flags().Changed("key") {
		return errors.New("pass --path and --key, or --email")
	}
	path, _ := cmd.Flags().GetString("path")
	key, _ := cmd.Flags().GetString("key")
	fmt.Fprintln(cmd.OutOrStdout(), c.Derive(strings.TrimSpace(path), key))
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		return errors.New("--email is required")
	}
	name, _ := cmd.Flags().GetString("name")
	teacher, _ := cmd.Flags().GetBool("teacher")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	tok, err := httpapi.Sign([]byte(cfg.Auth.JWTSecret),
		httpapi.User{Email: email, DisplayName: name, Teacher: teacher}, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
