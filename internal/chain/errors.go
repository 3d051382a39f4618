package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind classifies why a contract read failed.
type Kind int

const (
	KindUnreachable Kind = iota
	KindReverted
	KindTimeout
	KindMalformed
)

var (
	ErrUnreachable = errors.New("rpc endpoint unreachable")
	ErrReverted    = errors.New("call reverted")
	ErrTimeout     = errors.New("rpc call timed out")
	ErrMalformed   = errors.New("malformed response")
)

// revertErrorCode is the JSON-RPC code geth uses for execution reverted.
const revertErrorCode = 3

func (k Kind) String() string {
	switch k {
	case KindReverted:
		return "reverted"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	default:
		return "unreachable"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindReverted:
		return ErrReverted
	case KindTimeout:
		return ErrTimeout
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrUnreachable
	}
}

// CallError is the only error type returned by Reader implementations.
type CallError struct {
	Kind     Kind
	Contract common.Address
	Method   string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s %s.%s: %v", e.Kind, e.Contract.Hex(), e.Method, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error kind, so errors.Is(err, ErrReverted) works.
func (e *CallError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf extracts the kind of err, defaulting to KindUnreachable.
func KindOf(err error) Kind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return classify(err)
}

// Transient reports whether a failed read may succeed when retried.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindUnreachable, KindTimeout:
		return !errors.Is(err, context.Canceled)
	default:
		return false
	}
}

// Malformed wraps a decoding failure for contract.method.
func Malformed(contract common.Address, method string, err error) error {
	return &CallError{Kind: KindMalformed, Contract: contract, Method: method, Err: err}
}

func wrap(contract common.Address, method string, err error) error {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return err
	}
	return &CallError{Kind: classify(err), Contract: contract, Method: method, Err: err}
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return KindReverted
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return KindReverted
	}
	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return KindReverted
	}
	return KindUnreachable
}
