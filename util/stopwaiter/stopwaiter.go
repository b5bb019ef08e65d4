// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package stopwaiter tracks the background goroutines of a service so they
// can be cancelled together and waited for on shutdown.
package stopwaiter

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const stopDelayWarningTimeout = 30 * time.Second

var (
	errNotStarted      = errors.New("not started")
	errStartAfterStart = errors.New("start after start")
)

type StopWaiterSafe struct {
	mutex    sync.Mutex // protects everything below except wg
	started  bool
	stopped  bool
	ctx      context.Context
	stopFunc context.CancelFunc
	name     string
	waitChan <-chan struct{}

	wg sync.WaitGroup
}

func (s *StopWaiterSafe) Started() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.started
}

func (s *StopWaiterSafe) Stopped() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stopped
}

func (s *StopWaiterSafe) GetContext() (context.Context, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, errNotStarted
	}
	return s.ctx, nil
}

func ownerName(owner any) string {
	return strings.TrimPrefix(reflect.TypeOf(owner).String(), "*")
}

// Start derives the context of all threads from ctx. Starting twice is an
// error; starting after a stop yields an already cancelled context.
func (s *StopWaiterSafe) Start(ctx context.Context, owner any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.started {
		return errStartAfterStart
	}
	s.started = true
	s.name = ownerName(owner)
	s.ctx, s.stopFunc = context.WithCancel(ctx)
	if s.stopped {
		s.stopFunc()
	}
	return nil
}

// stopOnly cancels the threads and reports whether they were running.
func (s *StopWaiterSafe) stopOnly() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	wasRunning := s.started && !s.stopped
	if wasRunning {
		s.stopFunc()
	}
	s.stopped = true
	return wasRunning
}

func (s *StopWaiterSafe) StopOnly() {
	s.stopOnly()
}

// StopAndWait may be called multiple times, even before Start.
func (s *StopWaiterSafe) StopAndWait() error {
	return s.stopAndWaitImpl(stopDelayWarningTimeout)
}

func (s *StopWaiterSafe) stopAndWaitImpl(warningTimeout time.Duration) error {
	if !s.stopOnly() {
		return nil
	}
	waitChan, err := s.GetWaitChannel()
	if err != nil {
		return err
	}
	timer := time.NewTimer(warningTimeout)
	defer timer.Stop()
	select {
	case <-waitChan:
		return nil
	case <-timer.C:
		log.Warn("taking too long to stop", "name", s.name, "delay", warningTimeout)
	}
	<-waitChan
	return nil
}

// GetWaitChannel returns a channel closed once the context is cancelled and
// every thread has returned.
func (s *StopWaiterSafe) GetWaitChannel() (<-chan struct{}, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return nil, errNotStarted
	}
	if s.waitChan == nil {
		waitChan := make(chan struct{})
		ctx := s.ctx
		go func() {
			<-ctx.Done()
			s.wg.Wait()
			close(waitChan)
		}()
		s.waitChan = waitChan
	}
	return s.waitChan, nil
}

// LaunchThread runs fn in a tracked goroutine. After a stop fn is
// silently not run.
func (s *StopWaiterSafe) LaunchThread(fn func(context.Context)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.started {
		return errNotStarted
	}
	if s.stopped {
		return nil
	}
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
	return nil
}

// CallIteratively calls fn in a thread until stopped, sleeping for the
// duration fn returns between calls.
func (s *StopWaiterSafe) CallIteratively(fn func(context.Context) time.Duration) error {
	return s.LaunchThread(func(ctx context.Context) {
		for {
			interval := fn(ctx)
			if ctx.Err() != nil {
				return
			}
			if interval == 0 {
				continue
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	})
}

// StopWaiter panics where StopWaiterSafe returns errors.
type StopWaiter struct {
	StopWaiterSafe
}

func (s *StopWaiter) Start(ctx context.Context, owner any) {
	if err := s.StopWaiterSafe.Start(ctx, owner); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) StopAndWait() {
	if err := s.StopWaiterSafe.StopAndWait(); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) LaunchThread(fn func(context.Context)) {
	if err := s.StopWaiterSafe.LaunchThread(fn); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) CallIteratively(fn func(context.Context) time.Duration) {
	if err := s.StopWaiterSafe.CallIteratively(fn); err != nil {
		panic(err)
	}
}

func (s *StopWaiter) GetContext() context.Context {
	ctx, err := s.StopWaiterSafe.GetContext()
	if err != nil {
		panic(err)
	}
	return ctx
}
