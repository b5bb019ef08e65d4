// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"

	"github.com/rollups-settlement/settlement/availability"
	"github.com/rollups-settlement/settlement/cmd/genericconf"
	"github.com/rollups-settlement/settlement/cmd/util/confighelpers"
	"github.com/rollups-settlement/settlement/restapi"
)

type PersistentConfig struct {
	Chain    string `koanf:"chain"`
	DBEngine string `koanf:"db-engine"`
	Cache    int    `koanf:"cache"`
	Handles  int    `koanf:"handles"`
}

var DefaultPersistentConfig = PersistentConfig{
	Chain:    "",
	DBEngine: "memory",
	Cache:    16,
	Handles:  16,
}

func PersistentConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".chain", DefaultPersistentConfig.Chain, "directory to store the settlement database in")
	f.String(prefix+".db-engine", DefaultPersistentConfig.DBEngine, "backing database implementation to use ('memory', 'leveldb' or 'pebble')")
	f.Int(prefix+".cache", DefaultPersistentConfig.Cache, "database cache size in MB")
	f.Int(prefix+".handles", DefaultPersistentConfig.Handles, "number of open file handles the database may use")
}

func (c *PersistentConfig) Validate() error {
	switch c.DBEngine {
	case "memory":
		return nil
	case "leveldb", "pebble":
		if c.Chain == "" {
			return fmt.Errorf("persistent.chain must be set for db engine %s", c.DBEngine)
		}
		return nil
	}
	return fmt.Errorf("invalid db engine %q", c.DBEngine)
}

type ParentChainConfig struct {
	URL        string `koanf:"url"`
	FirstBlock uint64 `koanf:"first-block"`
}

var DefaultParentChainConfig = ParentChainConfig{
	URL:        "",
	FirstBlock: 1,
}

func ParentChainConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", DefaultParentChainConfig.URL, "parent chain RPC URL used for block context and voucher dispatch (empty to number blocks locally)")
	f.Uint64(prefix+".first-block", DefaultParentChainConfig.FirstBlock, "first block number handed out when blocks are numbered locally")
}

type ExecutorConfig struct {
	Dapps []string `koanf:"dapps"`
}

var DefaultExecutorConfig = ExecutorConfig{
	Dapps: nil,
}

func ExecutorConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.StringSlice(prefix+".dapps", DefaultExecutorConfig.Dapps, "applications whose vouchers this node executes")
}

func (c *ExecutorConfig) Addresses() ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(c.Dapps))
	for _, dapp := range c.Dapps {
		if !common.IsHexAddress(dapp) {
			return nil, fmt.Errorf("invalid executor application address %q", dapp)
		}
		addresses = append(addresses, common.HexToAddress(dapp))
	}
	return addresses, nil
}

type NodeConfig struct {
	Conf          genericconf.ConfConfig          `koanf:"conf"`
	LogLevel      string                          `koanf:"log-level"`
	LogType       string                          `koanf:"log-type"`
	FileLogging   genericconf.FileLoggingConfig   `koanf:"file-logging"`
	Persistent    PersistentConfig                `koanf:"persistent"`
	ParentChain   ParentChainConfig               `koanf:"parent-chain"`
	Storage       availability.StorageConfig      `koanf:"storage"`
	REST          restapi.ServerConfig            `koanf:"rest"`
	Executor      ExecutorConfig                  `koanf:"executor"`
	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
}

var NodeConfigDefault = NodeConfig{
	Conf:          genericconf.ConfConfigDefault,
	LogLevel:      "INFO",
	LogType:       "plaintext",
	FileLogging:   genericconf.DefaultFileLoggingConfig,
	Persistent:    DefaultPersistentConfig,
	ParentChain:   DefaultParentChainConfig,
	Storage:       availability.DefaultStorageConfig,
	REST:          restapi.DefaultServerConfig,
	Executor:      DefaultExecutorConfig,
	Metrics:       false,
	MetricsServer: genericconf.MetricsServerConfigDefault,
}

func NodeConfigAddOptions(f *flag.FlagSet) {
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", NodeConfigDefault.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", NodeConfigDefault.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	PersistentConfigAddOptions("persistent", f)
	ParentChainConfigAddOptions("parent-chain", f)
	availability.StorageConfigAddOptions("storage", f)
	restapi.ServerConfigAddOptions("rest", f)
	ExecutorConfigAddOptions("executor", f)
	f.Bool("metrics", NodeConfigDefault.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
}

func (c *NodeConfig) Validate() error {
	if _, err := genericconf.ToSlogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogType != "plaintext" && c.LogType != "json" {
		return fmt.Errorf("invalid log type %q", c.LogType)
	}
	if err := c.Persistent.Validate(); err != nil {
		return err
	}
	if c.Storage.Enabled() {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	} else if c.Storage.Archiver.Enable {
		return errors.New("storage.archiver.enable requires a payload storage backend")
	}
	if _, err := c.Executor.Addresses(); err != nil {
		return err
	}
	if len(c.Executor.Dapps) > 0 && c.ParentChain.URL == "" {
		return errors.New("executing vouchers requires parent-chain.url")
	}
	if c.Metrics && c.MetricsServer.Addr == "" {
		return errors.New("metrics enabled but metrics-server.addr is empty")
	}
	return nil
}

func ParseNode(args []string) (*NodeConfig, error) {
	f := flag.NewFlagSet("rollups-node", flag.ContinueOnError)
	NodeConfigAddOptions(f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}
	var nodeConfig NodeConfig
	if err := confighelpers.EndCommonParse(k, &nodeConfig); err != nil {
		return nil, err
	}
	if nodeConfig.Conf.Dump {
		err = confighelpers.DumpConfig(k, map[string]interface{}{
			"storage.redis-cache.key-config": "",
			"storage.s3-storage.secret-key":  "",
		})
		if err != nil {
			return nil, err
		}
		return nil, errDumped
	}
	if err := nodeConfig.Validate(); err != nil {
		return nil, err
	}
	return &nodeConfig, nil
}

var errDumped = errors.New("configuration dumped")
