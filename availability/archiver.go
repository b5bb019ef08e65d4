// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package availability

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	flag "github.com/spf13/pflag"

	"github.com/rollups-settlement/settlement/inputbox"
	"github.com/rollups-settlement/settlement/util/stopwaiter"
)

var (
	archivedPayloadsCounter = metrics.NewRegisteredCounter("settlement/availability/archived", nil)
	archiveFailuresCounter  = metrics.NewRegisteredCounter("settlement/availability/archive/failures", nil)
	archiveDroppedCounter   = metrics.NewRegisteredCounter("settlement/availability/archive/dropped", nil)
)

type ArchiverConfig struct {
	Enable     bool          `koanf:"enable"`
	QueueSize  int           `koanf:"queue-size"`
	RetryDelay time.Duration `koanf:"retry-delay"`
	MaxRetries int           `koanf:"max-retries"`
}

var DefaultArchiverConfig = ArchiverConfig{
	Enable:     true,
	QueueSize:  1024,
	RetryDelay: time.Second,
	MaxRetries: 5,
}

func ArchiverConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultArchiverConfig.Enable, "store the payload of every accepted input")
	f.Int(prefix+".queue-size", DefaultArchiverConfig.QueueSize, "number of accepted inputs that may wait to be archived; inputs arriving while the queue is full are not archived")
	f.Duration(prefix+".retry-delay", DefaultArchiverConfig.RetryDelay, "delay between attempts to store a payload")
	f.Int(prefix+".max-retries", DefaultArchiverConfig.MaxRetries, "attempts to store a payload before giving up on it")
}

// InputSource announces accepted inputs.
type InputSource interface {
	SubscribeInputAdded(ch chan<- inputbox.InputAdded) event.Subscription
}

// Archiver stores the payload of every input announced by an InputSource.
// It never blocks the source: announcements that find the queue full are
// dropped and counted.
type Archiver struct {
	stopwaiter.StopWaiter
	config  ArchiverConfig
	source  InputSource
	storage StorageService
	dropped atomic.Uint64
}

func NewArchiver(config ArchiverConfig, source InputSource, storage StorageService) (*Archiver, error) {
	if config.QueueSize <= 0 {
		return nil, errors.New("archiver queue size must be positive")
	}
	return &Archiver{
		config:  config,
		source:  source,
		storage: storage,
	}, nil
}

func (a *Archiver) Start(ctxIn context.Context) {
	a.StopWaiter.Start(ctxIn, a)
	added := make(chan inputbox.InputAdded, a.config.QueueSize)
	pending := make(chan *inputbox.InputAdded, a.config.QueueSize)
	sub := a.source.SubscribeInputAdded(added)
	a.LaunchThread(func(ctx context.Context) {
		defer sub.Unsubscribe()
		for {
			select {
			case record := <-added:
				select {
				case pending <- &record:
				default:
					a.dropped.Add(1)
					archiveDroppedCounter.Inc(1)
					log.Error("archive queue full, dropping input payload", "dapp", record.Dapp, "index", record.Index, "payloadHash", HashPayload(record.Payload))
				}
			case err := <-sub.Err():
				if err != nil {
					log.Error("input subscription failed", "err", err)
				}
				return
			case <-ctx.Done():
				return
			}
		}
	})
	a.LaunchThread(func(ctx context.Context) {
		for {
			select {
			case record := <-pending:
				a.archive(ctx, record)
			case <-ctx.Done():
				return
			}
		}
	})
}

// Dropped returns how many announced inputs were not archived because the
// queue was full.
func (a *Archiver) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *Archiver) archive(ctx context.Context, record *inputbox.InputAdded) {
	for attempt := 0; ; attempt++ {
		err := a.storage.Put(ctx, record.Payload)
		if err == nil {
			archivedPayloadsCounter.Inc(1)
			log.Debug("archived input payload", "dapp", record.Dapp, "index", record.Index, "payloadHash", HashPayload(record.Payload))
			return
		}
		if attempt >= a.config.MaxRetries {
			archiveFailuresCounter.Inc(1)
			log.Error("giving up archiving input payload", "dapp", record.Dapp, "index", record.Index, "err", err)
			return
		}
		log.Warn("failed to archive input payload, retrying", "dapp", record.Dapp, "index", record.Index, "attempt", attempt, "err", err)
		timer := time.NewTimer(a.config.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
