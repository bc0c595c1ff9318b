package onchain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Contract ABIs
var (
	erc20ABI      abi.ABI
	pairABI       abi.ABI // classic pair and concentrated pool share token0/token1
	v2FactoryABI  abi.ABI
	v2RouterABI   abi.ABI
	v3FactoryABI  abi.ABI
	quoterABI     abi.ABI
	settlementABI abi.ABI
)

// Swap event signatures watched on both venues. The concentrated venue may be
// either a Uniswap V3 pool or a PancakeSwap V3 pool, which adds two fields.
var (
	topicSwapV2        = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))
	topicSwapV3        = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))
	topicSwapPancakeV3 = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24,uint128,uint128)"))

	swapTopics = []common.Hash{topicSwapV2, topicSwapV3, topicSwapPancakeV3}
)

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(name + " abi parse: " + err.Error())
	}
	return parsed
}

func init() {
	erc20ABI = mustParse("erc20", `[
		{"name": "balanceOf", "type": "function", "stateMutability": "view",
		 "inputs": [{"name": "account", "type": "address"}],
		 "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "symbol", "type": "function", "stateMutability": "view",
		 "inputs": [], "outputs": [{"name": "", "type": "string"}]},
		{"name": "name", "type": "function", "stateMutability": "view",
		 "inputs": [], "outputs": [{"name": "", "type": "string"}]},
		{"name": "decimals", "type": "function", "stateMutability": "view",
		 "inputs": [], "outputs": [{"name": "", "type": "uint8"}]}
	]`)

	pairABI = mustParse("pair", `[
		{"name": "getReserves", "type": "function", "stateMutability": "view",
		 "inputs": [],
		 "outputs": [
			{"name": "reserve0", "type": "uint112"},
			{"name": "reserve1", "type": "uint112"},
			{"name": "blockTimestampLast", "type": "uint32"}
		 ]},
		{"name": "token0", "type": "function", "stateMutability": "view",
		 "inputs": [], "outputs": [{"name": "", "type": "address"}]},
		{"name": "token1", "type": "function", "stateMutability": "view",
		 "inputs": [], "outputs": [{"name": "", "type": "address"}]}
	]`)

	v2FactoryABI = mustParse("v2 factory", `[
		{"name": "getPair", "type": "function", "stateMutability": "view",
		 "inputs": [
			{"name": "tokenA", "type": "address"},
			{"name": "tokenB", "type": "address"}
		 ],
		 "outputs": [{"name": "pair", "type": "address"}]}
	]`)

	v2RouterABI = mustParse("v2 router", `[
		{"name": "getAmountsIn", "type": "function", "stateMutability": "view",
		 "inputs": [
			{"name": "amountOut", "type": "uint256"},
			{"name": "path", "type": "address[]"}
		 ],
		 "outputs": [{"name": "amounts", "type": "uint256[]"}]},
		{"name": "getAmountsOut", "type": "function", "stateMutability": "view",
		 "inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "path", "type": "address[]"}
		 ],
		 "outputs": [{"name": "amounts", "type": "uint256[]"}]}
	]`)

	v3FactoryABI = mustParse("v3 factory", `[
		{"name": "getPool", "type": "function", "stateMutability": "view",
		 "inputs": [
			{"name": "tokenA", "type": "address"},
			{"name": "tokenB", "type": "address"},
			{"name": "fee", "type": "uint24"}
		 ],
		 "outputs": [{"name": "pool", "type": "address"}]}
	]`)

	quoterABI = mustParse("quoter v2", `[
		{"name": "quoteExactInputSingle", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "params", "type": "tuple", "components": [
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "amountIn", "type": "uint256"},
			{"name": "fee", "type": "uint24"},
			{"name": "sqrtPriceLimitX96", "type": "uint160"}
		 ]}],
		 "outputs": [
			{"name": "amountOut", "type": "uint256"},
			{"name": "sqrtPriceX96After", "type": "uint160"},
			{"name": "initializedTicksCrossed", "type": "uint32"},
			{"name": "gasEstimate", "type": "uint256"}
		 ]},
		{"name": "quoteExactOutputSingle", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [{"name": "params", "type": "tuple", "components": [
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "fee", "type": "uint24"},
			{"name": "sqrtPriceLimitX96", "type": "uint160"}
		 ]}],
		 "outputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "sqrtPriceX96After", "type": "uint160"},
			{"name": "initializedTicksCrossed", "type": "uint32"},
			{"name": "gasEstimate", "type": "uint256"}
		 ]}
	]`)

	settlementABI = mustParse("settlement", `[
		{"name": "executeTrade", "type": "function", "stateMutability": "nonpayable",
		 "inputs": [
			{"name": "startOnConcentrated", "type": "bool"},
			{"name": "token0", "type": "address"},
			{"name": "token1", "type": "address"},
			{"name": "flashAmount", "type": "uint256"}
		 ],
		 "outputs": []}
	]`)
}

// exactInputParams mirrors QuoterV2.QuoteExactInputSingleParams.
type exactInputParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// exactOutputParams mirrors QuoterV2.QuoteExactOutputSingleParams.
type exactOutputParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Amount            *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}
