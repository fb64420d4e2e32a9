// pseriald - HTTP inspection service for the pserial codec
//
// Usage:
//
//	pseriald [--config file] [--addr host:port]
//
// Endpoints:
//
//	POST /v1/decode                      wire text -> {kind, value, dump}
//	POST /v1/encode                      JSON -> wire text
//	POST /v1/convert?from=<fmt>&to=<fmt> transcode between formats
//	GET  /healthz
//
// Configuration comes from the file plus PSERIAL_* environment
// variables. With server.hot_reload set, codec options follow edits to
// the file without a restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/Neumenon/pserial/internal/config"
	"github.com/Neumenon/pserial/internal/inspect"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pseriald: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configFile, addr string

	flagSet := pflag.NewFlagSet("pseriald", pflag.ContinueOnError)
	flagSet.StringVar(&configFile, "config", "", "configuration file (yaml, json or toml)")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	vc, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg := vc.Get()
	serverCfg := cfg.Server
	if addr != "" {
		serverCfg.Addr = addr
	}

	logger := cfg.NewLogger(os.Stderr)
	vc.SetLogger(logger)
	gin.SetMode(serverCfg.Mode)

	codec, err := cfg.NewCodec()
	if err != nil {
		return err
	}
	handler := inspect.NewHandler(codec, serverCfg.MaxBodyBytes, logger)

	if serverCfg.HotReload {
		inspect.Watch(vc, handler, logger)
		vc.EnableHotReload()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return inspect.Serve(ctx, serverCfg, inspect.NewRouter(handler, logger), logger)
}
