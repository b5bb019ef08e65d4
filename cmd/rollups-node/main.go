// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/exp"

	"github.com/rollups-settlement/settlement/cmd/genericconf"
	"github.com/rollups-settlement/settlement/cmd/util/confighelpers"
)

func printSampleUsage(name string) {
	fmt.Printf("Sample usage: %s --help \n", name)
}

func main() {
	os.Exit(mainImpl())
}

// Returns the exit code
func mainImpl() int {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	nodeConfig, err := ParseNode(os.Args[1:])
	if errors.Is(err, errDumped) {
		return 0
	}
	if err != nil {
		confighelpers.PrintErrorAndExit(err, printSampleUsage)
	}

	if err := genericconf.InitLog(nodeConfig.LogType, nodeConfig.LogLevel, &nodeConfig.FileLogging, genericconf.DefaultPathResolver(nodeConfig.Persistent.Chain)); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return 1
	}
	vcsRevision, vcsTime := confighelpers.GetVersion()
	log.Info("Running settlement node", "revision", vcsRevision, "vcs.time", vcsTime)

	if nodeConfig.Metrics {
		go metrics.CollectProcessMetrics(nodeConfig.MetricsServer.UpdateInterval)
		exp.Setup(fmt.Sprintf("%v:%v", nodeConfig.MetricsServer.Addr, nodeConfig.MetricsServer.Port))
	}

	node, err := CreateNode(ctx, nodeConfig)
	if err != nil {
		log.Error("failed to create node", "err", err)
		return 1
	}
	node.Start(ctx)

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigint:
		log.Info("shutting down because of sigint")
	case <-node.ServerExited():
		log.Error("REST server exited", "err", node.Server.GetServerError())
		exitCode = 1
	}

	// cause future ctrl+c's to panic
	close(sigint)

	if err := node.StopAndWait(ctx); err != nil {
		log.Error("error stopping node", "err", err)
		exitCode = 1
	}
	return exitCode
}
