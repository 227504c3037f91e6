package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tresor",
	Short: "Salted (path, key) -> value record store",
	Long: `tresor stores application records under salted tags, mirrors them in an
in-process cache and serves single and multidimensional batch reads over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./tresor.{yaml,json,toml})")
	rootCmd.AddCommand(serveCmd, tagCmd, tokenCmd)
}

// Execute runs the root command. It exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
