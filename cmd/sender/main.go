// Команда sender читает очередь magic-link и отправляет письма со ссылками входа.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/ocr-gateway/internal/app/sender"
	"github.com/magabrotheeeer/ocr-gateway/internal/config"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := sl.New(cfg.Env, os.Stdout).With(slog.String("component", "sender"))

	log.Info("starting magic-link sender",
		slog.String("env", cfg.Env),
		slog.Bool("smtp_configured", cfg.SMTP.Host != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("sender stopped with error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("sender stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	app, err := sender.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
