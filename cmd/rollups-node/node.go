// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/pebble"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rollups-settlement/settlement/availability"
	"github.com/rollups-settlement/settlement/dapp"
	"github.com/rollups-settlement/settlement/history"
	"github.com/rollups-settlement/settlement/inputbox"
	"github.com/rollups-settlement/settlement/restapi"
)

// Node ties the settlement components to one database and serves them
// over REST.
type Node struct {
	config *NodeConfig
	db     ethdb.Database
	client *ethclient.Client

	InputBox  *inputbox.InputBox
	History   *history.History
	Storage   availability.StorageService
	Archiver  *availability.Archiver
	Executors []*dapp.Executor
	Server    *restapi.Server
}

func openDatabase(config *PersistentConfig) (ethdb.Database, error) {
	switch config.DBEngine {
	case "memory":
		return rawdb.NewMemoryDatabase(), nil
	case "leveldb":
		kv, err := leveldb.New(config.Chain, config.Cache, config.Handles, "settlement/db/", false)
		if err != nil {
			return nil, err
		}
		return rawdb.NewDatabase(kv), nil
	case "pebble":
		kv, err := pebble.New(config.Chain, config.Cache, config.Handles, "settlement/db/", false)
		if err != nil {
			return nil, err
		}
		return rawdb.NewDatabase(kv), nil
	}
	return nil, fmt.Errorf("invalid db engine %q", config.DBEngine)
}

func CreateNode(ctx context.Context, config *NodeConfig) (*Node, error) {
	db, err := openDatabase(&config.Persistent)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	node := &Node{config: config, db: db}
	success := false
	defer func() {
		if !success {
			node.close(ctx)
		}
	}()

	var blocks inputbox.BlockContextReader
	if config.ParentChain.URL != "" {
		node.client, err = ethclient.DialContext(ctx, config.ParentChain.URL)
		if err != nil {
			return nil, fmt.Errorf("error connecting to parent chain: %w", err)
		}
		blocks = inputbox.NewHeaderBlockContextReader(node.client)
	} else {
		blocks = inputbox.NewLocalBlockClock(config.ParentChain.FirstBlock)
	}
	node.InputBox = inputbox.NewInputBox(db, blocks)
	node.History = history.NewHistory(db, node.InputBox)

	if config.Storage.Enabled() {
		node.Storage, err = availability.CreateStorageService(ctx, &config.Storage)
		if err != nil {
			return nil, fmt.Errorf("error creating payload storage: %w", err)
		}
		if config.Storage.Archiver.Enable {
			node.Archiver, err = availability.NewArchiver(config.Storage.Archiver, node.InputBox, node.Storage)
			if err != nil {
				return nil, err
			}
		}
	}

	addresses, err := config.Executor.Addresses()
	if err != nil {
		return nil, err
	}
	executors := make([]restapi.OutputExecutor, 0, len(addresses))
	for _, address := range addresses {
		executor := dapp.NewExecutor(db, address, node.History, dapp.NewCallDispatcher(node.client))
		node.Executors = append(node.Executors, executor)
		executors = append(executors, executor)
	}

	if config.REST.Enable {
		handler := restapi.NewHandler(&config.REST, node.InputBox, node.Storage, node.History, executors...)
		node.Server, err = restapi.NewServer(&config.REST, handler)
		if err != nil {
			return nil, fmt.Errorf("error starting REST server: %w", err)
		}
	}
	success = true
	return node, nil
}

func (n *Node) Start(ctx context.Context) {
	if n.Archiver != nil {
		n.Archiver.Start(ctx)
	}
}

// ServerExited is closed when the REST server stops on its own. It is nil,
// and so never ready, when no server runs.
func (n *Node) ServerExited() <-chan interface{} {
	if n.Server == nil {
		return nil
	}
	return n.Server.GetServerExitedChan()
}

func (n *Node) StopAndWait(ctx context.Context) error {
	var errs []error
	if n.Server != nil {
		if err := n.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down REST server: %w", err))
		}
		n.Server = nil
	}
	if n.Archiver != nil && n.Archiver.Started() {
		n.Archiver.StopAndWait()
	}
	errs = append(errs, n.close(ctx))
	return errors.Join(errs...)
}

func (n *Node) close(ctx context.Context) error {
	var errs []error
	if n.Server != nil {
		errs = append(errs, n.Server.Shutdown(ctx))
		n.Server = nil
	}
	if n.Storage != nil {
		if err := n.Storage.Close(ctx); err != nil {
			log.Warn("error closing payload storage", "err", err)
			errs = append(errs, err)
		}
		n.Storage = nil
	}
	if n.client != nil {
		n.client.Close()
		n.client = nil
	}
	if n.db != nil {
		errs = append(errs, n.db.Close())
		n.db = nil
	}
	return errors.Join(errs...)
}
