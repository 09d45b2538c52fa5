package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evolvekit/kb-evolve/internal/db"
	"github.com/evolvekit/kb-evolve/internal/evolution"
	"github.com/evolvekit/kb-evolve/internal/feedback"
	"github.com/evolvekit/kb-evolve/internal/knowledge"
	"github.com/evolvekit/kb-evolve/internal/rules"
	"github.com/evolvekit/kb-evolve/internal/selfevolve"
	"github.com/evolvekit/kb-evolve/internal/server"
)

var (
	servePort     int
	serveAllowAll bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kb-evolve HTTP server",
	Long:  `Starts the REST API for documents, feedback, rules, evolution jobs, and self-evolution runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		database, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()

		provider, err := createProvider(cfg)
		if err != nil {
			return err
		}
		eng := buildEngine(cfg, database, provider)

		srv := server.New(server.Config{
			Host:     cfg.Server.Host,
			Port:     cfg.Server.Port,
			AllowAll: serveAllowAll,
		}, database, provider)

		knowledge.RegisterRoutes(srv.Router(), eng.docs)
		feedback.RegisterRoutes(srv.Router(), eng.recorder, eng.signals)
		rules.RegisterRoutes(srv.Router(), eng.ruleStore)
		evolution.RegisterRoutes(srv.Router(), eng.orchestrator, eng.jobs)
		selfevolve.RegisterRoutes(srv.Router(), eng.selfRunner, eng.selfStore)

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGTERM)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-done:
			fmt.Fprintln(os.Stderr, "shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveAllowAll, "allow-all-origins", false, "allow all CORS origins (dev mode)")
	rootCmd.AddCommand(serveCmd)
}
