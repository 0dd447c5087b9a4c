package main

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/blockstack-inc/stacks-mempool/logger"
)

const (
	logFilename = "mempool-debug.log"
)

type config struct {
	DBPath        string `long:"db" description:"path to the mempool database file" default:"mempool.sqlite"`
	SubmitHex     string `long:"submit-hex" description:"hex-encoded demo transaction to submit"`
	ConsensusHash string `long:"consensus-hash" description:"hex-encoded 20-byte consensus hash of the tip" default:""`
	BlockHash     string `long:"block-hash" description:"hex-encoded 32-byte block header hash of the tip" default:""`
	GetTx         string `long:"get-tx" description:"hex-encoded txid to fetch"`
	PrintDigest   bool   `long:"print-digest" description:"print the sync digest and exit"`
	LogLevel      string `long:"loglevel" description:"{trace, debug, info, warn, error, critical}" default:"info"`
}

func parseConfig() (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	if err := logger.ParseAndSetDebugLevels(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid loglevel: %s", err)
	}
	if err := logger.InitLogRotators(logFilename); err != nil {
		return nil, fmt.Errorf("failed to initialize log rotator: %s", err)
	}

	return cfg, nil
}
