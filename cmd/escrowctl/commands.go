package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	edto "github.com/radieske/bet-escrow-poc/internal/escrow-service/dto"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/feed"
	"github.com/radieske/bet-escrow-poc/internal/escrowctl"
)

func client(cmd *cobra.Command) *escrowctl.Client {
	escrowURL, _ := cmd.Flags().GetString("escrow-url")
	walletURL, _ := cmd.Flags().GetString("wallet-url")
	return escrowctl.NewClient(escrowURL, walletURL)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func betIDArg(args []string) (uint64, error) {
	return strconv.ParseUint(args[0], 10, 64)
}

// PublishCmd publica uma aposta com o stake do challenger
func PublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a new bet, staking its price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			name, _ := cmd.Flags().GetString("name")
			conditions, _ := cmd.Flags().GetString("conditions")
			price, _ := cmd.Flags().GetInt64("price")
			value, _ := cmd.Flags().GetInt64("value")
			if !cmd.Flags().Changed("value") {
				value = price
			}
			rec, err := client(cmd).Publish(cmd.Context(), edto.PublishBetRequest{
				From: from, Value: value, Name: name, Conditions: conditions, Price: price,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().String("from", "", "challenger address")
	cmd.Flags().String("name", "", "bet name")
	cmd.Flags().String("conditions", "", "resolution conditions")
	cmd.Flags().Int64("price", 0, "stake each side puts in (minimum units)")
	cmd.Flags().Int64("value", 0, "attached value (defaults to price)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func AcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <bet-id>",
		Short: "Accept an open bet, matching its price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := betIDArg(args)
			if err != nil {
				return err
			}
			from, _ := cmd.Flags().GetString("from")
			value, _ := cmd.Flags().GetInt64("value")
			rec, err := client(cmd).Accept(cmd.Context(), id, edto.AcceptBetRequest{From: from, Value: value})
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().String("from", "", "accepter address")
	cmd.Flags().Int64("value", 0, "attached value, must equal the bet price")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func ResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <bet-id>",
		Short: "Resolve an accepted bet (referee only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := betIDArg(args)
			if err != nil {
				return err
			}
			from, _ := cmd.Flags().GetString("from")
			challengerWins, _ := cmd.Flags().GetBool("challenger-wins")
			rec, err := client(cmd).Resolve(cmd.Context(), id, edto.ResolveBetRequest{
				From: from, OutcomeFavorsChallenger: challengerWins,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().String("from", "", "referee address")
	cmd.Flags().Bool("challenger-wins", false, "outcome favors the challenger")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func CountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Number of bets ever published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := client(cmd).Count(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, edto.CountResponse{Count: n})
		},
	}
}

func AvailableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "Ids of open bets, in publication order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := client(cmd).Available(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, edto.AvailableResponse{IDs: ids})
		},
	}
}

func BetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bet <bet-id>",
		Short: "Show one bet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := betIDArg(args)
			if err != nil {
				return err
			}
			bet, err := client(cmd).Bet(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, bet)
		},
	}
}

func RecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List transition records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			after, _ := cmd.Flags().GetUint64("after")
			recs, err := client(cmd).Records(cmd.Context(), after)
			if err != nil {
				return err
			}
			return printJSON(cmd, edto.RecordsResponse{Records: recs})
		},
	}
	cmd.Flags().Uint64("after", 0, "only records with seq greater than this")
	return cmd
}

func DepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Credit a wallet (dev helper)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("address")
			amount, _ := cmd.Flags().GetInt64("amount")
			w, err := client(cmd).Deposit(cmd.Context(), addr, amount)
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
	cmd.Flags().String("address", "", "wallet address")
	cmd.Flags().Int64("amount", 0, "amount in minimum units")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func BalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("address")
			w, err := client(cmd).Balance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
	cmd.Flags().String("address", "", "wallet address")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

// WatchCmd segue o feed ao vivo até Ctrl+C
func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream bet transitions from the live feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			escrowURL, _ := cmd.Flags().GetString("escrow-url")
			betID, _ := cmd.Flags().GetUint64("bet")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			w := &escrowctl.Watcher{
				URL:   escrowctl.WSURL(escrowURL),
				BetID: betID,
				OnUpdate: func(u feed.Update) {
					_ = printJSON(cmd, u.Payload)
				},
			}
			if err := w.Validate(); err != nil {
				return err
			}
			w.Start(ctx)
			return nil
		},
	}
	cmd.Flags().Uint64("bet", 0, "only this bet (0 = all)")
	return cmd
}
