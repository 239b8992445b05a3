package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/backstage/services/ledger/config"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ledger-service",
	Short: "Account ledger service using event sourcing",
	Long:  `A service for managing account balances using event sourcing and CQRS pattern`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./app.env)")
}

func initConfig() {
	var err error

	if cfgFile != "" {
		// Use config file from the flag
		config.SetConfigFile(cfgFile)
	}

	cfg, err = config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
}
