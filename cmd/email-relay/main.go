// Command email-relay accepts send requests over HTTP and delivers them with
// the strategy named in its configuration file.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/interactive-solutions/go-email"
	"github.com/interactive-solutions/go-email/config"

	_ "github.com/interactive-solutions/go-email/provider/mailgun"
	_ "github.com/interactive-solutions/go-email/provider/ses"
	_ "github.com/interactive-solutions/go-email/provider/smtp"
	_ "github.com/interactive-solutions/go-email/provider/webhook"
)

func main() {
	configPath := flag.String("config", "email-relay.yaml", "path to the configuration file")
	envPrefix := flag.String("env-prefix", "EMAIL_RELAY", "prefix of environment overrides")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewViper(*configPath, *envPrefix)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.GetString("log.level")); err == nil {
		logger.SetLevel(level)
	}

	container, err := email.RegisterService(email.NewContainer(email.SetContainerLogger(logger)), cfg, email.Singleton)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure email service")
	}
	defer container.Close()

	service, err := container.Service()
	if err != nil {
		logger.WithError(err).Fatal("Failed to build email service")
	}

	router := mux.NewRouter()
	email.NewHttpHandler(service, logger).RegisterRoutes(router)

	addr := cfg.GetString("http.addr")
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.
			WithField("addr", addr).
			WithField("transport", service.TransportName()).
			Info("email relay listening")

		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Failed to shut down http server")
	}
}
