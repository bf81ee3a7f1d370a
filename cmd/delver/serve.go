package main

import (
	"context"
	"log"
	"time"

	"github.com/rahul/delver/internal/agent"
	"github.com/rahul/delver/internal/gateway"
	"github.com/rahul/delver/internal/observability"
	"github.com/rahul/delver/pkg/config"
	"github.com/spf13/cobra"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		addr      string
		dashboard bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, chat gateways and scheduled research",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			if dashboard {
				observability.PrintBanner()
				observability.InitializeTerminal()
				defer observability.CleanupTerminal()
			}

			// Route all log output through the terminal mutex so it never
			// interrupts the dashboard's cursor save/restore sequence.
			termOut := observability.NewTermWriter()
			log.SetOutput(termOut)

			a, err := newApp(cmd.Context(), cfg, termOut)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()

			router := &gateway.Multi{Prefixed: map[string]gateway.Messenger{}}
			scheduler := agent.NewScheduler(a.researcher, a.store, router)
			commands := &gateway.Commands{Runner: a.researcher, Scheduler: scheduler}

			var gateways []gateway.Messenger
			if tgCfg, ok := cfg.GetGatewayConfig("telegram"); ok {
				tg, err := gateway.NewTelegramGateway(tgCfg.Token, commands)
				if err != nil {
					return err
				}
				router.Default = tg
				gateways = append(gateways, tg)
			}
			if dcCfg, ok := cfg.GetGatewayConfig("discord"); ok {
				dc, err := gateway.NewDiscordGateway(dcCfg.Token, commands)
				if err != nil {
					return err
				}
				router.Prefixed["discord"] = dc
				gateways = append(gateways, dc)
			}

			go scheduler.Start(ctx)

			go func() {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						observability.Heartbeat()
						a.logger.LogHeartbeat()
					}
				}
			}()

			if dashboard {
				go func() {
					ticker := time.NewTicker(1 * time.Second)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							observability.PrintLiveStatus()
						}
					}
				}()
			}

			for _, gw := range gateways {
				go func(gw gateway.Messenger) {
					if err := gw.Start(ctx); err != nil {
						log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
						stop() // stop everything if a gateway dies
					}
				}(gw)
			}

			srv := gateway.NewHTTPServer(cfg.Server.Address, a.researcher, a.store)
			log.Printf("HTTP API listening on %s", cfg.Server.Address)
			err = srv.Start(ctx)

			stop()
			for _, gw := range gateways {
				gw.Stop()
			}
			log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&dashboard, "dashboard", false, "show the banner and live status line")
	return cmd
}
