package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/scenesolver/scenesolver/pkg/nn/remote"
	"github.com/scenesolver/scenesolver/server"
	"github.com/scenesolver/scenesolver/server/config"
)

func main() {
	parser := argparse.NewParser("scenesolver", "Incident assessment of uploaded images and videos")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file path (default scenesolver.json, if it exists)", Default: ""})
	listen := parser.String("l", "listen", &argparse.Options{Help: "Override the listen address in the config file, eg ':8080'", Default: ""})
	inferenceURL := parser.String("", "inference", &argparse.Options{Help: "Override the model server URL in the config file", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *inferenceURL != "" {
		cfg.Inference.URL = *inferenceURL
	}

	// The capabilities are created once, and shared by every request until shutdown
	services, err := remote.NewServices(logger, cfg.Inference.URL, cfg.Inference.Timeout())
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.Infof("Using model server at %v", cfg.Inference.URL)

	srv, err := server.NewServer(logger, cfg, services)
	if err != nil {
		logger.Errorf("%v", err)
		services.Close()
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(cfg.Listen); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		srv.Shutdown()
	}
	if err := <-srv.ShutdownComplete; err != nil {
		logger.Warnf("Shutdown: %v", err)
	}
}
