package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/radieske/bet-escrow-poc/internal/shared/config"
)

func main() {
	if err := rootCmd(config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "escrowctl",
		Short:        "Command line client for the bet escrow",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("escrow-url", cfg.EscrowURL, "escrow-service base URL")
	cmd.PersistentFlags().String("wallet-url", cfg.WalletURL, "wallet-service base URL")

	cmd.AddCommand(
		PublishCmd(),
		AcceptCmd(),
		ResolveCmd(),
		CountCmd(),
		AvailableCmd(),
		BetCmd(),
		RecordsCmd(),
		DepositCmd(),
		BalanceCmd(),
		WatchCmd(),
	)
	return cmd
}
