package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/voiceorder/printspool/internal/agent"
)

func main() {
	configFile := flag.String("config", "agent.yaml", "path to agent config file")
	serverURL := flag.String("server", "", "override the server URL")
	token := flag.String("token", "", "override the agent token")
	flag.Parse()

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Printf("[agent] could not read %s: %v (using defaults)", *configFile, err)
	}

	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *token != "" {
		cfg.Server.Token = *token
	}
	if v := os.Getenv("PRINTSPOOL_AGENT_TOKEN"); v != "" && cfg.Server.Token == "" {
		cfg.Server.Token = v
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[agent] invalid config: %v", err)
	}

	state, err := agent.LoadState(cfg.State.Path)
	if err != nil {
		log.Fatalf("[agent] failed to load state: %v", err)
	}

	client := agent.NewClient(cfg.Server.URL, cfg.Server.Token, cfg.Server.Timeout)
	runner := agent.NewRunner(client, state, agent.RunnerConfig{
		SpoolDir:     cfg.Printer.SpoolDir,
		PrintCommand: cfg.Printer.Command,
		PrintArgs:    cfg.Printer.Args,
		PollInterval: cfg.Server.PollInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[agent] connected to %s", cfg.Server.URL)
	runner.Run(ctx)
}
