// Package main serves the mock Addy.io and SimpleLogin APIs on fixed ports
// for end-to-end runs of aliasd.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sipico/alias-relay/internal/testutil/mockaddy"
	"github.com/sipico/alias-relay/internal/testutil/mocksimplelogin"
)

// getEnv returns the variable or fallback.
func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// setupMocks builds both mocks from the environment. ADDY_DOMAINS and
// SIMPLELOGIN_DOMAINS are comma-separated; an Addy domain suffixed with
// "!" is registered without catch-all.
func setupMocks() (*mockaddy.Server, *mocksimplelogin.Server) {
	addy := mockaddy.New()
	if token := os.Getenv("ADDY_TOKEN"); token != "" {
		addy.SetToken(token)
	}
	for _, d := range splitList(os.Getenv("ADDY_DOMAINS")) {
		name, disabled := strings.CutSuffix(d, "!")
		addy.AddDomain(name, !disabled)
	}

	sl := mocksimplelogin.New()
	for _, d := range splitList(os.Getenv("SIMPLELOGIN_DOMAINS")) {
		sl.AddCustomDomain(d, true)
	}
	return addy, sl
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// doHealthCheck returns 0 when url answers at all (the mocks reply 401
// without credentials), 1 otherwise. Used by container HEALTHCHECK.
func doHealthCheck(url string) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return 1
	}
	return 0
}

func main() {
	addyPort := getEnv("ADDY_PORT", "8081")
	slPort := getEnv("SIMPLELOGIN_PORT", "8082")

	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(doHealthCheck("http://localhost:" + addyPort + "/api/v1/account-details"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	addy, sl := setupMocks()
	defer addy.Close()
	defer sl.Close()

	servers := []*http.Server{
		{Addr: ":" + addyPort, Handler: addy.Handler(), ReadHeaderTimeout: 5 * time.Second},
		{Addr: ":" + slPort, Handler: sl.Handler(), ReadHeaderTimeout: 5 * time.Second},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("mock listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		for _, srv := range servers {
			//nolint:errcheck
			srv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("mock server error", "error", err)
		os.Exit(1)
	}
	logger.Info("mock providers stopped")
}
