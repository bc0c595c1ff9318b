package onchain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/venuearb/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// Gas price update interval
	gasPriceUpdateInterval = 30 * time.Second

	defaultReceiptPoll = 3 * time.Second
)

// fallbackGasPriceWei is used when the node cannot suggest a price and
// nothing is cached: 5 gwei.
var fallbackGasPriceWei = big.NewInt(5_000_000_000)

// SettlementClient sends executeTrade transactions to the flash-loan
// settlement contract. It implements ports.Settlement.
type SettlementClient struct {
	client   *Client
	contract common.Address
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	gasLimit uint64
	poll     time.Duration

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// ParsePrivateKey decodes a hex key (with or without 0x) and returns the
// key and its address.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, common.Address, error) {
	pkBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("onchain.ParsePrivateKey: decode: %w", err)
	}
	key, err := crypto.ToECDSA(pkBytes)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("onchain.ParsePrivateKey: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// NewSettlementClient creates a sender for contract signed with key.
// gasLimit 0 means estimate per transaction.
func NewSettlementClient(ctx context.Context, c *Client, contract common.Address, key *ecdsa.PrivateKey, gasLimit uint64) (*SettlementClient, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("onchain.NewSettlementClient: %w", err)
	}
	return &SettlementClient{
		client:   c,
		contract: contract,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		gasLimit: gasLimit,
		poll:     defaultReceiptPoll,
	}, nil
}

// Spender returns the signing account, which pays gas.
func (s *SettlementClient) Spender() common.Address {
	return s.address
}

// ExecuteTrade signs and sends executeTrade and waits for its receipt until
// ctx expires.
func (s *SettlementClient) ExecuteTrade(ctx context.Context, startOnConcentrated bool, asset0, asset1 common.Address, amount *big.Int) (domain.SettlementReceipt, error) {
	var result domain.SettlementReceipt

	callData, err := settlementABI.Pack("executeTrade", startOnConcentrated, asset0, asset1, amount)
	if err != nil {
		return result, fmt.Errorf("onchain.ExecuteTrade: pack: %w", err)
	}

	if err := s.client.wait(ctx); err != nil {
		return result, err
	}
	nonce, err := s.client.eth.PendingNonceAt(ctx, s.address)
	if err != nil {
		return result, fmt.Errorf("onchain.ExecuteTrade: nonce: %w", err)
	}

	gasPrice := s.gasPrice(ctx)

	gasLimit := s.gasLimit
	if gasLimit == 0 {
		if gasLimit, err = s.estimateGas(ctx, callData, gasPrice); err != nil {
			return result, fmt.Errorf("onchain.ExecuteTrade: estimate gas: %w", err)
		}
	}

	tx := types.NewTransaction(nonce, s.contract, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return result, fmt.Errorf("onchain.ExecuteTrade: sign tx: %w", err)
	}

	if err := s.client.wait(ctx); err != nil {
		return result, err
	}
	if err := s.client.eth.SendTransaction(ctx, signed); err != nil {
		return result, fmt.Errorf("onchain.ExecuteTrade: send tx: %w", err)
	}
	result.TxHash = signed.Hash()
	slog.Info("onchain: settlement transaction sent",
		"tx", result.TxHash.Hex(),
		"nonce", nonce,
		"gas_limit", gasLimit,
		"gas_price_wei", gasPrice.String(),
	)

	receipt, err := s.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return result, fmt.Errorf("onchain.ExecuteTrade: tx %s unconfirmed: %w", result.TxHash.Hex(), err)
	}

	result.BlockNumber = receipt.BlockNumber.Uint64()
	result.GasUsed = receipt.GasUsed
	result.Success = receipt.Status == types.ReceiptStatusSuccessful
	if !result.Success {
		return result, fmt.Errorf("onchain.ExecuteTrade: tx %s: %w", result.TxHash.Hex(), domain.ErrTradeReverted)
	}
	return result, nil
}

// estimateGas runs eth_estimateGas and adds a 20% buffer.
func (s *SettlementClient) estimateGas(ctx context.Context, data []byte, gasPrice *big.Int) (uint64, error) {
	if err := s.client.wait(ctx); err != nil {
		return 0, err
	}
	est, err := s.client.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     s.address,
		To:       &s.contract,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		return 0, err
	}
	return est * 12 / 10, nil
}

// gasPrice returns the suggested gas price plus 10%, cached for
// gasPriceUpdateInterval.
func (s *SettlementClient) gasPrice(ctx context.Context) *big.Int {
	s.mu.RLock()
	cached := s.cachedGasWei
	updatedAt := s.gasUpdatedAt
	s.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached
	}

	var price *big.Int
	err := s.client.wait(ctx)
	if err == nil {
		price, err = s.client.eth.SuggestGasPrice(ctx)
	}
	if err != nil {
		slog.Warn("onchain: gas price unavailable, using fallback", "err", err)
		if cached != nil {
			return cached
		}
		return fallbackGasPriceWei
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	s.mu.Lock()
	s.cachedGasWei = buffered
	s.gasUpdatedAt = time.Now()
	s.mu.Unlock()

	return buffered
}

// waitForReceipt polls for a transaction receipt until mined or ctx expires.
func (s *SettlementClient) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if err := s.client.wait(ctx); err != nil {
				return nil, err
			}
			receipt, err := s.client.eth.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}
