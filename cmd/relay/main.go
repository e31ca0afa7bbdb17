package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/router-for-me/GeminiKeyRelay/internal/app"
	"github.com/router-for-me/GeminiKeyRelay/internal/config"
	"github.com/router-for-me/GeminiKeyRelay/internal/logging"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	errRun := run(ctx, os.Args[1:])
	stop()
	if errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, configures logging and serves until ctx is done.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "listen port, overrides config and env PORT")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	var (
		appCfg config.AppConfig
		err    error
	)
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg, err = config.Load(*cfgPath)
	} else {
		appCfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
		appCfg.Port = *port
	}

	logCloser, errLog := logging.Setup(appCfg.Logging)
	if errLog != nil {
		return errLog
	}
	defer func() { _ = logCloser.Close() }()

	if appCfg.FileLoaded {
		log.Infof("loaded config from %s", appCfg.ConfigPath)
	} else {
		log.Infof("config file %s not found, using defaults and environment", appCfg.ConfigPath)
	}
	return app.RunServer(ctx, appCfg)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
