package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"makerwatch/internal/metrics"
)

// Reader performs read-only contract calls. Implementations never retry and
// report every failure as a *CallError.
type Reader interface {
	Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error)
}

// Options parameterise the RPC reader.
type Options struct {
	RPCURL            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxConnsPerHost   int
}

// EthReader reads contract state over JSON-RPC.
type EthReader struct {
	opts    Options
	abi     abi.ABI
	logger  zerolog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	caller    ethereum.ContractCaller
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewEthReader builds a reader that dials opts.RPCURL on first use.
func NewEthReader(opts Options, logger zerolog.Logger, m *metrics.Metrics) *EthReader {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &EthReader{
		opts:    opts,
		abi:     DefaultABI,
		logger:  logger.With().Str("component", "rpc_reader").Logger(),
		metrics: m,
		limiter: newLimiter(opts.RequestsPerSecond, opts.Burst),
	}
}

// NewReaderWithCaller builds a reader over an existing caller, e.g. a simulated backend.
func NewReaderWithCaller(caller ethereum.ContractCaller, opts Options, logger zerolog.Logger, m *metrics.Metrics) *EthReader {
	r := NewEthReader(opts, logger, m)
	r.caller = caller
	return r
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Read packs method(args...), calls contract and unpacks the outputs.
func (r *EthReader) Read(ctx context.Context, contract common.Address, method string, args ...interface{}) (out []interface{}, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = Malformed(contract, method, fmt.Errorf("panic: %v", rec))
		}
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		r.metrics.ObserveRPC(method, outcome, time.Since(start))
	}()

	if _, ok := r.abi.Methods[method]; !ok {
		return nil, Malformed(contract, method, errors.New("method not in abi"))
	}

	payload, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, Malformed(contract, method, fmt.Errorf("pack: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, wrap(contract, method, err)
	}

	caller, err := r.getCaller(ctx)
	if err != nil {
		return nil, wrap(contract, method, err)
	}

	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: payload}, nil)
	if err != nil {
		return nil, wrap(contract, method, err)
	}

	outputs, err := r.abi.Unpack(method, res)
	if err != nil {
		return nil, Malformed(contract, method, fmt.Errorf("unpack: %w", err))
	}
	return outputs, nil
}

// Close releases the underlying RPC client, if one was dialled.
func (r *EthReader) Close() {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
		r.caller = nil
	}
}

func (r *EthReader) getCaller(ctx context.Context) (ethereum.ContractCaller, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.caller != nil {
		return r.caller, nil
	}
	if r.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        r.opts.MaxConnsPerHost,
			MaxConnsPerHost:     r.opts.MaxConnsPerHost,
			MaxIdleConnsPerHost: r.opts.MaxConnsPerHost,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	rpcClient, err := rpc.DialOptions(ctx, r.opts.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	r.client = ethclient.NewClient(rpcClient)
	r.caller = r.client
	r.logger.Info().Str("rpc_url", r.opts.RPCURL).Msg("rpc client connected")
	return r.caller, nil
}

// ReadUint reads a method returning a single unsigned integer.
func ReadUint(ctx context.Context, r Reader, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	outputs, err := r.Read(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, Malformed(contract, method, fmt.Errorf("expected 1 output, got %d", len(outputs)))
	}
	v, err := AsBig(outputs[0])
	if err != nil {
		return nil, Malformed(contract, method, err)
	}
	return v, nil
}

// AsBig converts an unpacked unsigned integer output into *big.Int.
func AsBig(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, errors.New("nil integer output")
		}
		return n, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	default:
		return nil, fmt.Errorf("unexpected integer output type %T", v)
	}
}

// AsAddress converts an unpacked address output.
func AsAddress(v interface{}) (common.Address, error) {
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected address output type %T", v)
	}
	return addr, nil
}

var _ Reader = (*EthReader)(nil)
