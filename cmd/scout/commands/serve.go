package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/server"
)

// NewServeCmd constructs the `scout serve` command, which starts the HTTP
// server and serves the web UI for interactive use.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var secureCookies bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Insight Scout HTTP server and web UI",
		Long: `Start the Insight Scout HTTP server on localhost.

The server serves the web UI and a JSON API. Every browser gets its own
session with its own index; idle sessions are evicted after
SCOUT_SESSION_TTL (default 30m).

SCOUT_HOST and SCOUT_PORT are used when the flags are not given.
SCOUT_RATE_LIMIT_RPS and SCOUT_RATE_LIMIT_BURST tune the per-IP limit on
the process and ask endpoints (default 10/s, burst 20).

Examples:
  scout serve
  scout serve --port 9090
  MODEL_PROVIDER=openai scout serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			env, err := serverEnvFromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if !cmd.Flags().Changed("host") && env.host != "" {
				host = env.host
			}
			if !cmd.Flags().Changed("port") && env.port != 0 {
				port = env.port
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			a, err := buildApp(ctx, log, appOptions{history: true, registerer: reg})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.close()

			srv, err := server.New(a.assistant, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         a.pingers(),
				RateLimit:       env.rateLimit,
				RateBurst:       env.rateBurst,
				SessionTTL:      a.settings.SessionTTL,
				History:         a.history,
				SecureCookies:   secureCookies,
				MetricsRegistry: reg,
				MetricsGatherer: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark the session cookie Secure (enable behind TLS)")

	return cmd
}

// serverEnv holds the server settings read from the environment. Zero values
// leave the flag or server default in place.
type serverEnv struct {
	host      string
	port      int
	rateLimit float64
	rateBurst int
}

func serverEnvFromEnv() (serverEnv, error) {
	env := serverEnv{host: os.Getenv("SCOUT_HOST")}
	var err error
	if v := os.Getenv("SCOUT_PORT"); v != "" {
		if env.port, err = strconv.Atoi(v); err != nil || env.port <= 0 || env.port > 65535 {
			return serverEnv{}, fmt.Errorf("SCOUT_PORT=%q is not a valid port", v)
		}
	}
	if v := os.Getenv("SCOUT_RATE_LIMIT_RPS"); v != "" {
		if env.rateLimit, err = strconv.ParseFloat(v, 64); err != nil || env.rateLimit <= 0 {
			return serverEnv{}, fmt.Errorf("SCOUT_RATE_LIMIT_RPS=%q must be a positive number", v)
		}
	}
	if v := os.Getenv("SCOUT_RATE_LIMIT_BURST"); v != "" {
		if env.rateBurst, err = strconv.Atoi(v); err != nil || env.rateBurst <= 0 {
			return serverEnv{}, fmt.Errorf("SCOUT_RATE_LIMIT_BURST=%q must be a positive integer", v)
		}
	}
	return env, nil
}
