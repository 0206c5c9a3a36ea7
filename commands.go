package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fsbo_scrooper/api"
	"fsbo_scrooper/config"
	"fsbo_scrooper/httputil"
	"fsbo_scrooper/logging"
	"fsbo_scrooper/models"
	"fsbo_scrooper/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the scrape schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, true, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.New(a.cfg.Scheduler, a.orchestrator, logging.Component("scheduler"))
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			srv := api.NewServer(a.cfg.Server, api.Options{
				Scraper:  a.handler,
				Recorder: a.orchestrator,
				Store:    a.store,
				Solver:   a.solver,
				Commands: sched,
				Logger:   logging.Component("api"),
			})
			err = srv.ListenAndServe(ctx)
			a.logger.Info().Msg("Shutting down")
			return err
		},
	}
}

func newScrapeCmd() *cobra.Command {
	var (
		zip      string
		urlType  string
		headless bool
		save     bool
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape one ZIP code and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, save, func(cfg *config.Config) {
				if cmd.Flags().Changed("headless") {
					cfg.Browser.Headless = headless
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()
			req := models.ScrapeRequest{ZipCode: zip, URLType: urlType}

			var res *models.ScrapeResult
			if save {
				res, err = a.orchestrator.Run(ctx, req)
			} else {
				res, err = a.handler.Scrape(ctx, req)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("scrape failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&zip, "zip", "", "five digit ZIP code")
	cmd.Flags().StringVar(&urlType, "url-type", "", "url template set (simple, fsbo, complex, google, mobile)")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	cmd.Flags().BoolVar(&save, "save", false, "persist the result to storage")
	_ = cmd.MarkFlagRequired("zip")
	return cmd
}

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the remote solver account balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logFile, err := loadConfig()
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}

			client := newSolver(cfg, httputil.NewClients(cfg.Proxy))
			balance, err := client.Balance(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%.4f USD\n", balance)
			return nil
		},
	}
}
