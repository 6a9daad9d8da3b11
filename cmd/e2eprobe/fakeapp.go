package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gotrs-io/e2eprobe/internal/config"
	"github.com/gotrs-io/e2eprobe/internal/fakeapp"
)

func newFakeAppCmd(configFile *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "fakeapp",
		Short: "Serve the demo application, seeded with the configured credentials",
		Long: `Fakeapp serves a small role-gated application that renders the markup
the default selectors expect. Its accounts are the roles under credentials in
the config (or E2E_CREDENTIALS_* variables, see "e2eprobe synthesize"), so a
run against it needs no further setup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveFakeApp(ctx, addr, cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

// fakeAppUsers turns configured credentials into seed accounts.
func fakeAppUsers(cfg *config.Config) []fakeapp.User {
	roles := make([]string, 0, len(cfg.Credentials))
	for role := range cfg.Credentials {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	users := make([]fakeapp.User, 0, len(roles))
	for _, role := range roles {
		c := cfg.Credentials[role]
		if c.Email == "" || c.Password == "" {
			continue
		}
		users = append(users, fakeapp.User{Email: c.Email, Password: c.Password, Role: role, TOTPSecret: c.TOTPSecret})
	}
	return users
}

func serveFakeApp(ctx context.Context, addr string, cfg *config.Config, log zerolog.Logger) error {
	users := fakeAppUsers(cfg)
	if len(users) == 0 {
		return fmt.Errorf("no credentials configured; run \"e2eprobe synthesize\" first")
	}
	if log.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	app, err := fakeapp.New(fakeapp.Options{Users: users}, log)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: addr, Handler: app.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Int("accounts", len(users)).Msg("fakeapp listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
