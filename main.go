package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "fsbo_scrooper",
		Short:         "Scrape for-sale-by-owner listings through press-and-hold challenges",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newScrapeCmd(), newBalanceCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Command failed")
		}
		os.Exit(1)
	}
}
