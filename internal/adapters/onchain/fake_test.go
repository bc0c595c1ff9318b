package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// handler receives the unpacked inputs of a call and returns its outputs.
type handler func(args []any) ([]any, error)

// fakeBackend answers eth_call by decoding the selector against every known
// ABI and dispatching to a per-contract handler.
type fakeBackend struct {
	mu        sync.Mutex
	abis      []abi.ABI
	contracts map[common.Address]map[string]handler
	native    map[common.Address]*big.Int

	chainID  *big.Int
	block    uint64
	gasPrice *big.Int
	gasErr   error
	gasCalls int
	estimate uint64

	sent    []*types.Transaction
	sendErr error
	status  uint64

	logs   chan<- types.Log
	query  ethereum.FilterQuery
	sub    *fakeSub
	subErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		abis:      []abi.ABI{erc20ABI, pairABI, v2FactoryABI, v2RouterABI, v3FactoryABI, quoterABI},
		contracts: map[common.Address]map[string]handler{},
		native:    map[common.Address]*big.Int{},
		chainID:   big.NewInt(56),
		block:     100,
		gasPrice:  big.NewInt(1_000_000_000),
		estimate:  300_000,
		status:    types.ReceiptStatusSuccessful,
	}
}

func (f *fakeBackend) on(contract common.Address, method string, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contracts[contract] == nil {
		f.contracts[contract] = map[string]handler{}
	}
	f.contracts[contract][method] = h
}

func returns(vals ...any) handler {
	return func([]any) ([]any, error) { return vals, nil }
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.block, nil }

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.native[account]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("bad call")
	}
	f.mu.Lock()
	handlers := f.contracts[*msg.To]
	f.mu.Unlock()
	if handlers == nil {
		return nil, nil
	}

	for _, a := range f.abis {
		m, err := a.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		h, ok := handlers[m.Name]
		if !ok {
			continue
		}
		args, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		outs, err := h(args)
		if err != nil {
			return nil, err
		}
		return m.Outputs.Pack(outs...)
	}
	return nil, fmt.Errorf("execution reverted: no handler on %s", msg.To.Hex())
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gasCalls++
	if f.gasErr != nil {
		return nil, f.gasErr
	}
	return f.gasPrice, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				TxHash:      txHash,
				Status:      f.status,
				GasUsed:     210_000,
				BlockNumber: new(big.Int).SetUint64(f.block + 1),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) SubscribeFilterLogs(_ context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.query = q
	f.logs = ch
	f.sub = &fakeSub{errc: make(chan error, 1)}
	return f.sub, nil
}

func (f *fakeBackend) subscription() (chan<- types.Log, *fakeSub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, f.sub
}

type fakeSub struct {
	errc         chan error
	once         sync.Once
	unsubscribed bool
}

func (s *fakeSub) Unsubscribe() {
	s.once.Do(func() { s.unsubscribed = true })
}

func (s *fakeSub) Err() <-chan error { return s.errc }
