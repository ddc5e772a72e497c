package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "linkmond",
	Short: "Link Monitor: interface/adjacency state and advertisement daemon",
	Long: `linkmond fuses kernel link events, neighbor-discovery events, admin
commands and key-value store feedback into a single authoritative view of
this node's interfaces and adjacencies, and advertises it to the rest of
the cluster.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(); it only needs to happen
// once, on rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "lm", Title: "Link Monitor Commands"})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "link monitor config file (default /etc/linkmond/linkmond.yaml)")
}
