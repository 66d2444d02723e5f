// ABOUTME: Entry point for showcase-backend
// ABOUTME: Serves the showcase HTTP API and offers health and unit conversion commands

package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/showcase-backend/internal/client"
	"github.com/2389/showcase-backend/internal/config"
	"github.com/2389/showcase-backend/internal/server"
	"github.com/2389/showcase-backend/internal/units"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
      _                                          _                _                  _
  ___| |__   _____      _____ __ _ ___  ___     | |__   __ _  ___| | _____ _ __   __| |
 / __| '_ \ / _ \ \ /\ / / __/ _' / __|/ _ \____| '_ \ / _' |/ __| |/ / _ \ '_ \ / _' |
 \__ \ | | | (_) \ V  V / (_| (_| \__ \  __/____| |_) | (_| | (__|   <  __/ | | | (_| |
 |___/_| |_|\___/ \_/\_/ \___\__,_|___/\___|    |_.__/ \__,_|\___|_|\_\___|_| |_|\__,_|
`

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: showcase-backend <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                        Start the HTTP server")
	fmt.Fprintln(w, "  health                       Check server health")
	fmt.Fprintln(w, "  stats                        Print catalog statistics from a running server")
	fmt.Fprintln(w, "  convert eth-to-wei <amount>  Convert a display amount to its 18-decimal integer")
	fmt.Fprintln(w, "  convert wei-to-eth <amount>  Convert an 18-decimal integer to a display amount")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx, os.Stdout)
	case "stats":
		err = runStats(ctx, os.Stdout)
	case "convert":
		err = runConvert(os.Args[2:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, cfg.Debug, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Gateway:   %s\n", cfg.Gateway.FileEndpoint())
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s ", cfg.Storage.Backend)
	if cfg.Storage.Backend == config.BackendSQLite {
		gray.Printf("(%s)\n", cfg.Storage.Path)
	} else {
		gray.Printf("(%s)\n", cfg.Storage.DataDir)
	}
	if cfg.Gateway.Account == "" || cfg.Gateway.Signature == "" {
		yellow.Println("    ! gateway credentials missing, uploads will fail")
	}
	if cfg.Debug {
		yellow.Println("    ! debug logging enabled")
	}
	fmt.Println()

	logger.Info("starting showcase-backend",
		"addr", cfg.Addr(),
		"gateway", cfg.Gateway.BaseURL,
		"storage", cfg.Storage.Backend,
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// serverURL returns the local base URL, dialing loopback when the server
// listens on every interface.
func serverURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}

func newLocalClient() (*client.Client, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return client.New(serverURL(cfg)), nil
}

func runHealth(ctx context.Context, out io.Writer) error {
	c, err := newLocalClient()
	if err != nil {
		return err
	}
	return printHealth(ctx, c, out)
}

func printHealth(ctx context.Context, c *client.Client, out io.Writer) error {
	health, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Fprintln(out, "healthy")
	if health.StorageConnected {
		fmt.Fprintln(out, "storage gateway: reachable")
	} else {
		fmt.Fprintln(out, "storage gateway: unreachable")
	}
	if health.DatabaseConnected {
		fmt.Fprintln(out, "local store: ok")
	} else {
		fmt.Fprintln(out, "local store: unavailable")
	}
	return nil
}

func runStats(ctx context.Context, out io.Writer) error {
	c, err := newLocalClient()
	if err != nil {
		return err
	}
	return printStats(ctx, c, out)
}

func printStats(ctx context.Context, c *client.Client, out io.Writer) error {
	st, err := c.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}

	fmt.Fprintf(out, "products: %d\n", st.TotalProducts)
	fmt.Fprintf(out, "personas: %d\n", st.TotalPersonas)
	for _, k := range sortedKeys(st.ProductsByStatus) {
		fmt.Fprintf(out, "  status %s: %d\n", k, st.ProductsByStatus[k])
	}
	for _, k := range sortedKeys(st.Categories) {
		fmt.Fprintf(out, "  category %s: %d\n", k, st.Categories[k])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}

// runConvert converts between display amounts and 18-decimal integers
// without contacting the server.
func runConvert(args []string, out io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: showcase-backend convert eth-to-wei|wei-to-eth <amount>")
	}

	switch args[0] {
	case "eth-to-wei":
		eth, err := units.ParseDisplay(args[1])
		if err != nil {
			return err
		}
		wei, err := units.ToFixed18(eth)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, wei.String())
	case "wei-to-eth":
		wei, err := units.ParseFixed(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, units.FormatFixed(wei))
	default:
		return fmt.Errorf("unknown conversion %q", args[0])
	}
	return nil
}
