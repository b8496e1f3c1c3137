// Command server runs the order API and payment webhook receiver.
//
//	server            start the HTTP server
//	server token ...  mint a bearer token for local testing
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartapp/orderpay/app"
	"github.com/smartapp/orderpay/internal/auth"
	"github.com/smartapp/orderpay/internal/models"
	"github.com/smartapp/orderpay/server"
)

func main() {
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fallbackLogger.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		return
	}

	application, err := app.New()
	if err != nil {
		fallbackLogger.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	srv, err := server.New(application.Config, application.Logger, application.Handlers)
	if err != nil {
		fallbackLogger.Error("failed to initialize server", "error", err)
		application.Close()
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		if err != nil {
			application.Logger.Error("server failed", "error", err)
			application.Close()
			os.Exit(1)
		}
		application.Close()
		return
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	if err := srv.Close(ctx); err != nil {
		cancel()
		application.Logger.Error("server forced to shutdown", "error", err)
		application.Close()
		os.Exit(1)
	}
	cancel()

	application.Close()
}

// issueToken signs a token with JWT_SECRET and prints it.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	id := fs.String("id", "", "subject id")
	role := fs.String("role", models.RoleCustomer, "CUSTOMER, SUPER_ADMIN, SUPPORT_ADMIN or KITCHEN_ADMIN")
	emailAddr := fs.String("email", "", "customer email")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	token, err := auth.NewTokenVerifier(secret).Issue(auth.Identity{ID: *id, Role: *role, Email: *emailAddr}, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
