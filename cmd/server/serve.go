package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yamdb/internal/auth"
	"yamdb/internal/config"
	"yamdb/internal/db"
	"yamdb/internal/handlers"
	"yamdb/internal/mail"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	logger := newLogger()
	cfg, conn, err := openDB()
	if err != nil {
		return err
	}
	defer conn.Close()

	sender, err := mail.New(cfg.Mail, logger)
	if err != nil {
		return err
	}
	limits := config.DefaultLimits()
	store := db.New(conn)
	tokens := auth.NewManager(cfg.SecretKey, cfg.AccessTokenTTL)
	flow := auth.NewFlow(store, tokens, sender, cfg.Mail.From, cfg.ConfirmationTTL, limits, logger)
	h := handlers.New(store, flow, tokens, limits, cfg.PageSize, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          logger,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
