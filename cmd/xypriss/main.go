// Command xypriss runs the XyPriss application server. Invoked as
// `xypriss sys <command>` it instead runs the sys CLI subcommand; invoked
// with --worker it runs as a ClusterSupervisor-managed worker process
// rather than the master.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nehonix/xypriss/app"
	"github.com/nehonix/xypriss/internal/config"
	"github.com/nehonix/xypriss/internal/syscli"
	"github.com/nehonix/xypriss/internal/util/log"
)

const (
	applicationName    = "xypriss"
	applicationVersion = "0.1.0"

	shutdownGrace = 30 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sys" {
		os.Exit(syscli.Run(os.Args[2:], os.Stdout))
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("xypriss", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	worker := fs.Bool("worker", false, "run as a cluster worker rather than the master process")
	workerID := fs.String("worker-id", "", "worker identity, set by the cluster supervisor")
	port := fs.Int("port", 0, "override the configured listen port")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if err := config.Load(applicationName, applicationVersion, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log.Configure(config.Get().Logging.LogFile, config.Get().Logging.Level)

	cfg := config.Get()
	if *port > 0 {
		// Get hands back a private copy; publish the override through
		// Update so every config reader sees the same snapshot.
		cfg.Server.Port = *port
		if err := config.Update(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	if *worker {
		log.Info("starting as cluster worker", log.Pairs{"workerId": *workerID, "port": cfg.Server.Port})
	}

	application, err := app.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- application.Start(ctx) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
}
