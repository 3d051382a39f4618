package stats

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makerwatch/internal/chain"
)

type vowReader struct {
	values map[string]*big.Int
	fail   string
	order  []string
}

func (r *vowReader) Read(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	r.order = append(r.order, method)
	if method == r.fail {
		return nil, &chain.CallError{Kind: chain.KindReverted, Contract: contract, Method: method, Err: errors.New("execution reverted")}
	}
	return []interface{}{r.values[method]}, nil
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func fullVow() *vowReader {
	return &vowReader{values: map[string]*big.Int{
		chain.MethodAwe:  wad(1000),
		chain.MethodSin:  wad(200),
		chain.MethodAsh:  wad(30),
		chain.MethodWoe:  wad(4),
		chain.MethodJoy:  wad(5000),
		chain.MethodSump: wad(50000),
		chain.MethodWait: big.NewInt(561600),
	}}
}

func TestFetchReadsSevenFigures(t *testing.T) {
	reader := fullVow()
	f := NewFetcher(common.HexToAddress("0xA950524441892A31ebddF91d3cEEFa04Bf454466"), reader, zerolog.Nop())

	stats, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000.000", stats.Awe.Format(3))
	assert.Equal(t, "5000.000", stats.Joy.Format(3))
	assert.Equal(t, uint64(561600), stats.Wait)
	assert.False(t, stats.ReadAt.IsZero())
	assert.Equal(t, statMethods, reader.order)
}

func TestFetchAbortsOnFirstFailure(t *testing.T) {
	reader := fullVow()
	reader.fail = chain.MethodWoe
	f := NewFetcher(common.Address{}, reader, zerolog.Nop())

	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrReverted)
	assert.Contains(t, err.Error(), "Woe")
	assert.Len(t, reader.order, 4, "失败后不应继续读取")
}

func TestFetchRejectsOversizedWait(t *testing.T) {
	reader := fullVow()
	reader.values[chain.MethodWait] = new(big.Int).Lsh(big.NewInt(1), 70)
	f := NewFetcher(common.Address{}, reader, zerolog.Nop())

	_, err := f.Fetch(context.Background())
	assert.ErrorIs(t, err, chain.ErrMalformed)
}
