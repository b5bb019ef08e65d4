// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package restapi exposes the input box, the payload store, claims and
// output validation over HTTP with JSON bodies.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	flag "github.com/spf13/pflag"

	"github.com/rollups-settlement/settlement/availability"
	"github.com/rollups-settlement/settlement/canonical"
	"github.com/rollups-settlement/settlement/dapp"
	"github.com/rollups-settlement/settlement/history"
	"github.com/rollups-settlement/settlement/inputbox"
)

var (
	requestsCounter      = metrics.NewRegisteredCounter("settlement/restapi/requests", nil)
	requestErrorsCounter = metrics.NewRegisteredCounter("settlement/restapi/errors", nil)
)

type ServerConfig struct {
	Enable          bool          `koanf:"enable"`
	Addr            string        `koanf:"addr"`
	Port            uint64        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read-timeout"`
	WriteTimeout    time.Duration `koanf:"write-timeout"`
	IdleTimeout     time.Duration `koanf:"idle-timeout"`
	AcceptInputs    bool          `koanf:"accept-inputs"`
	AcceptClaims    bool          `koanf:"accept-claims"`
	ShutdownTimeout time.Duration `koanf:"shutdown-timeout"`
}

var DefaultServerConfig = ServerConfig{
	Enable:          true,
	Addr:            "localhost",
	Port:            8080,
	ReadTimeout:     30 * time.Second,
	WriteTimeout:    30 * time.Second,
	IdleTimeout:     120 * time.Second,
	AcceptInputs:    true,
	AcceptClaims:    false,
	ShutdownTimeout: 5 * time.Second,
}

func ServerConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Bool(prefix+".enable", DefaultServerConfig.Enable, "enable the REST server")
	f.String(prefix+".addr", DefaultServerConfig.Addr, "REST server listening interface")
	f.Uint64(prefix+".port", DefaultServerConfig.Port, "REST server listening port")
	f.Duration(prefix+".read-timeout", DefaultServerConfig.ReadTimeout, "REST server read timeout")
	f.Duration(prefix+".write-timeout", DefaultServerConfig.WriteTimeout, "REST server write timeout")
	f.Duration(prefix+".idle-timeout", DefaultServerConfig.IdleTimeout, "REST server idle timeout")
	f.Bool(prefix+".accept-inputs", DefaultServerConfig.AcceptInputs, "accept input submissions over REST")
	f.Bool(prefix+".accept-claims", DefaultServerConfig.AcceptClaims, "accept claim submissions over REST")
	f.Duration(prefix+".shutdown-timeout", DefaultServerConfig.ShutdownTimeout, "how long to wait for in-flight requests on shutdown")
}

// The largest request body: a hex encoded input payload plus the JSON
// around it.
const maxRequestBodySize = 2*canonical.InputMaxSize + 4096

type InputBox interface {
	AddInput(ctx context.Context, dapp common.Address, sender common.Address, payload []byte) (*inputbox.InputAdded, error)
	GetNumberOfInputs(dapp common.Address) (uint64, error)
	GetInputHash(dapp common.Address, index uint64) (common.Hash, error)
}

type ClaimRegistry interface {
	SubmitClaim(dapp common.Address, claim history.Claim) (uint64, error)
	GetClaim(dapp common.Address, claimIndex uint64) (*history.Claim, error)
	CurrentEpoch(dapp common.Address) (*history.Epoch, error)
}

type OutputExecutor interface {
	Dapp() common.Address
	ExecuteVoucher(ctx context.Context, destination common.Address, payload []byte, proof *dapp.Proof) error
	ValidateNotice(notice []byte, proof *dapp.Proof) error
	WasVoucherExecuted(inputIndex, outputIndex uint64) (bool, error)
}

// Handler routes REST requests. Storage and claims may be nil, in which
// case their endpoints are not served. Voucher endpoints exist only for
// applications with an executor.
type Handler struct {
	config    *ServerConfig
	inputs    InputBox
	storage   availability.StorageService
	claims    ClaimRegistry
	executors map[common.Address]OutputExecutor
	mux       *http.ServeMux
}

func NewHandler(config *ServerConfig, inputs InputBox, storage availability.StorageService, claims ClaimRegistry, executors ...OutputExecutor) *Handler {
	h := &Handler{
		config:    config,
		inputs:    inputs,
		storage:   storage,
		claims:    claims,
		executors: make(map[common.Address]OutputExecutor, len(executors)),
		mux:       http.NewServeMux(),
	}
	for _, executor := range executors {
		h.executors[executor.Dapp()] = executor
	}
	h.mux.HandleFunc("GET /inputs/{dapp}/count", h.getInputCount)
	h.mux.HandleFunc("GET /inputs/{dapp}/{index}", h.getInputHash)
	if config.AcceptInputs {
		h.mux.HandleFunc("POST /inputs/{dapp}", h.addInput)
	}
	if storage != nil {
		h.mux.HandleFunc("GET /payload/{hash}", h.getPayload)
	}
	h.mux.HandleFunc("POST /outputs/validate", h.validateOutput)
	h.mux.HandleFunc("GET /outputs/bitmask/{output}/{input}", h.getBitMaskPosition)
	if claims != nil {
		h.mux.HandleFunc("GET /claims/{dapp}/{index}", h.getClaim)
		h.mux.HandleFunc("GET /epochs/{dapp}/current", h.getCurrentEpoch)
		if config.AcceptClaims {
			h.mux.HandleFunc("POST /claims/{dapp}", h.submitClaim)
		}
	}
	if len(executors) > 0 {
		h.mux.HandleFunc("POST /vouchers/{dapp}/execute", h.executeVoucher)
		h.mux.HandleFunc("GET /vouchers/{dapp}/{input}/{output}", h.wasVoucherExecuted)
		h.mux.HandleFunc("POST /notices/{dapp}/validate", h.validateNotice)
	}
	h.mux.HandleFunc("GET /healthz", h.healthCheck)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestsCounter.Inc(1)
	log.Debug("Got request", "method", r.Method, "requestPath", r.URL.Path)
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	}
	h.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("Failed encoding and writing response", "requestPath", r.URL.Path, "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestErrorsCounter.Inc(1)
	kind, status := classify(err)
	if status == http.StatusInternalServerError {
		log.Error("REST request failed", "requestPath", r.URL.Path, "err", err)
	} else {
		log.Debug("REST request rejected", "requestPath", r.URL.Path, "kind", kind, "err", err)
	}
	writeJSON(w, r, status, ErrorResponse{Error: kind, Message: err.Error()})
}

func parseAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, value)
	}
	return common.HexToAddress(value), nil
}

func parseUint64(value string) (uint64, error) {
	parsed, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid index %q", errBadRequest, value)
	}
	return parsed, nil
}

func decodeBody(r *http.Request, body interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(body); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// Server serves a Handler until Shutdown.
type Server struct {
	config               *ServerConfig
	server               *http.Server
	listener             net.Listener
	httpServerExitedChan chan interface{}
	httpServerError      error
}

func NewServer(config *ServerConfig, handler http.Handler) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprint(config.Addr, ":", config.Port))
	if err != nil {
		return nil, err
	}
	ret := &Server{
		config:   config,
		listener: listener,
		server: &http.Server{
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		httpServerExitedChan: make(chan interface{}),
	}
	go func() {
		err := ret.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			ret.httpServerError = err
		}
		close(ret.httpServerExitedChan)
	}()
	log.Info("REST server started", "addr", listener.Addr())
	return ret, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// GetServerExitedChan returns a channel closed when the server terminates.
func (s *Server) GetServerExitedChan() <-chan interface{} {
	return s.httpServerExitedChan
}

func (s *Server) GetServerError() error {
	return s.httpServerError
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-s.httpServerExitedChan
	return s.httpServerError
}
