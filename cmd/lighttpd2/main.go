/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Command lighttpd2 is the engine's CLI entrypoint: a thin cobra root
// command with one "serve" subcommand, following the corpus-wide
// convention of a cobra root plus jwalterweatherman as the direct
// user-facing feedback channel (distinct from the structured logger,
// which goes to the configured log output instead of the terminal).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"github/sabouaram/httpengine/backendpool"
	"github/sabouaram/httpengine/config"
	"github/sabouaram/httpengine/logger"
	"github/sabouaram/httpengine/server"
	"github/sabouaram/httpengine/statcache"
)

func main() {
	logger.SetSPF13Level(logger.GetDefault(), logger.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		jww.FATAL.Println(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lighttpd2",
		Short: "httpengine: an embeddable HTTP/1.1 request-processing engine",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath   string
		shutdownWait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "load a config file and run the server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, shutdownWait)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "httpengine.yaml", "path to the YAML config file")
	cmd.Flags().DurationVar(&shutdownWait, "shutdown-wait", 15*time.Second, "how long to wait for in-flight requests to drain on shutdown")
	return cmd
}

func runServe(configPath string, shutdownWait time.Duration) error {
	jww.FEEDBACK.Printf("lighttpd2: loading config from %s\n", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg := prometheus.NewRegistry()
	log := logger.FuncLog(logger.GetDefault)

	pools, err := cfg.BuildBackendPools(backendpool.Callbacks{}, reg, log)
	if err != nil {
		return fmt.Errorf("building backend pools: %w", err)
	}

	stat := statcache.New(cfg.StatCache)

	// srv is filled in below, once BuildServer returns; the status
	// action only ever calls snapshot() in response to a live request,
	// which cannot happen before Start.
	var srv *server.Server
	snapshot := func() interface{} {
		if srv == nil {
			return nil
		}
		return srv.Collect()
	}

	handler := cfg.BuildHandler(pools, stat, snapshot, log)

	srv, err = cfg.BuildServer(handler, reg, log)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv.Start(ctx)
	jww.FEEDBACK.Printf("lighttpd2: listening on %v\n", srv.Addrs())

	srv.WaitNotify(ctx)

	jww.FEEDBACK.Println("lighttpd2: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownWait)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
