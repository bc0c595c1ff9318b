package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

const (
	// Public RPC endpoints throttle around 25-50 req/s; stay well below.
	defaultRatePerSec = 15
	rateBurst         = 5
)

// backend is the subset of *ethclient.Client the adapters use.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Client wraps an RPC connection with a token-bucket limiter shared by every
// call. It implements ports.ChainReader.
type Client struct {
	eth     backend
	limiter *rate.Limiter
	close   func()
}

// Dial connects to rpcURL. A websocket URL is required for swap subscriptions.
func Dial(ctx context.Context, rpcURL string, ratePerSec float64) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: %s: %w", rpcURL, err)
	}
	c := newClient(ec, ratePerSec)
	c.close = ec.Close
	return c, nil
}

func newClient(b backend, ratePerSec float64) *Client {
	if ratePerSec <= 0 {
		ratePerSec = defaultRatePerSec
	}
	return &Client{
		eth:     b,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), rateBurst),
		close:   func() {},
	}
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.close()
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// ChainID returns the network's EIP-155 chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("onchain.ChainID: %w", err)
	}
	return id, nil
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("onchain.BlockNumber: %w", err)
	}
	return n, nil
}

// BalanceOf returns the ERC-20 balance of owner.
func (c *Client) BalanceOf(ctx context.Context, asset, owner common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, asset, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("onchain.BalanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// NativeBalance returns the gas-asset balance of owner.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	bal, err := c.eth.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("onchain.NativeBalance: %w", err)
	}
	return bal, nil
}

// call packs method, runs eth_call against to at the latest block and
// unpacks the outputs. An empty result means there is no contract at to.
func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result", method, to.Hex())
	}
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("unpack %s: no outputs", method)
	}
	return vals, nil
}
