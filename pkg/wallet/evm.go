package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"cashier/config"
)

// EVMConnector signs and broadcasts on EVM-compatible chains.
type EVMConnector struct {
	networkName string
	network     config.EVMNetwork
	client      *ethclient.Client
	privateKey  *ecdsa.PrivateKey
	address     common.Address
}

// ERC20 transfer function ABI
const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// balanceOf(address) function ABI
const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

// House swap router: swap(fromToken, toToken, amountIn, slippageBps, recipient)
const swapRouterABI = `[{"constant":false,"inputs":[{"name":"fromToken","type":"address"},{"name":"toToken","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"slippageBps","type":"uint256"},{"name":"recipient","type":"address"}],"name":"swap","outputs":[],"type":"function"}]`

// NewEVMConnector creates an EVM connector for a configured network.
func NewEVMConnector(cfg config.EVMConfig, networkName string) (*EVMConnector, error) {
	network, exists := cfg.Networks[networkName]
	if !exists {
		return nil, fmt.Errorf("network %s not configured", networkName)
	}
	if network.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured for network %s", networkName)
	}
	if network.PrivateKey == "" {
		return nil, fmt.Errorf("private key not configured for network %s", networkName)
	}

	client, err := ethclient.Dial(network.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(network.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to get public key")
	}

	return &EVMConnector{
		networkName: networkName,
		network:     network,
		client:      client,
		privateKey:  privateKey,
		address:     crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the connected wallet address.
func (e *EVMConnector) Address() (string, error) {
	return e.address.Hex(), nil
}

// BlockExplorerURLs returns the configured explorer base URLs.
func (e *EVMConnector) BlockExplorerURLs() []string {
	return e.network.ExplorerURLs
}

// ExecuteSwap submits a swap through the house router contract and
// reports a structured result rather than an error: callers surface
// Err to the user verbatim.
func (e *EVMConnector) ExecuteSwap(ctx context.Context, p SwapParams) SwapResult {
	if e.network.SwapRouter == "" {
		return SwapResult{Err: fmt.Sprintf("no swap router configured for network %s", e.networkName)}
	}
	if !common.IsHexAddress(p.WalletAddress) {
		return SwapResult{Err: fmt.Sprintf("invalid wallet address: %s", p.WalletAddress)}
	}

	amountIn, err := toBaseUnits(p.Amount, p.FromTokenDecimals)
	if err != nil {
		return SwapResult{Err: fmt.Sprintf("invalid amount: %v", err)}
	}

	parsedABI, err := abi.JSON(strings.NewReader(swapRouterABI))
	if err != nil {
		return SwapResult{Err: fmt.Sprintf("failed to parse router ABI: %v", err)}
	}

	slippageBps := p.SlippagePercent.Mul(decimal.NewFromInt(100)).BigInt()
	data, err := parsedABI.Pack("swap",
		common.HexToAddress(p.FromTokenAddress),
		common.HexToAddress(p.ToTokenAddress),
		amountIn,
		slippageBps,
		common.HexToAddress(p.WalletAddress),
	)
	if err != nil {
		return SwapResult{Err: fmt.Sprintf("failed to pack swap data: %v", err)}
	}

	router := common.HexToAddress(e.network.SwapRouter)
	tx, err := e.buildAndSign(ctx, router, big.NewInt(0), data, 220000)
	if err != nil {
		return SwapResult{Err: err.Error()}
	}

	if err := e.client.SendTransaction(ctx, tx); err != nil {
		return SwapResult{Err: fmt.Sprintf("failed to send transaction: %v", err)}
	}

	return SwapResult{Success: true, TxHash: tx.Hash().Hex()}
}

// Transfer sends native coin or an ERC-20 token.
func (e *EVMConnector) Transfer(ctx context.Context, p TransferParams) (string, error) {
	if !common.IsHexAddress(p.To) {
		return "", fmt.Errorf("invalid recipient address: %s", p.To)
	}

	amount, err := toBaseUnits(p.Amount, p.Decimals)
	if err != nil {
		return "", fmt.Errorf("invalid amount: %w", err)
	}

	var tx *ethtypes.Transaction
	if p.TokenAddress == "" {
		tx, err = e.transferNative(ctx, common.HexToAddress(p.To), amount)
	} else {
		tx, err = e.transferERC20(ctx, common.HexToAddress(p.To), p.TokenAddress, amount)
	}
	if err != nil {
		return "", err
	}

	if err := e.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func (e *EVMConnector) transferNative(ctx context.Context, to common.Address, amount *big.Int) (*ethtypes.Transaction, error) {
	balance, err := e.client.BalanceAt(ctx, e.address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient balance: have %s wei, need %s wei", balance.String(), amount.String())
	}
	return e.buildAndSign(ctx, to, amount, nil, 21000)
}

func (e *EVMConnector) transferERC20(ctx context.Context, to common.Address, tokenContract string, amount *big.Int) (*ethtypes.Transaction, error) {
	if !common.IsHexAddress(tokenContract) {
		return nil, fmt.Errorf("invalid token contract address: %s", tokenContract)
	}
	tokenAddress := common.HexToAddress(tokenContract)

	balance, err := e.erc20Balance(ctx, tokenAddress, e.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient token balance: have %s, need %s", balance.String(), amount.String())
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	data, err := parsedABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer data: %w", err)
	}

	return e.buildAndSign(ctx, tokenAddress, big.NewInt(0), data, 100000)
}

// buildAndSign assembles, prices and signs a transaction.
func (e *EVMConnector) buildAndSign(ctx context.Context, to common.Address, value *big.Int, data []byte, fallbackGas uint64) (*ethtypes.Transaction, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := e.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := fallbackGas
	if e.network.GasLimit != nil {
		gasLimit = *e.network.GasLimit
	} else if len(data) > 0 {
		msg := ethereum.CallMsg{From: e.address, To: &to, Value: value, Data: data}
		if estimated, err := e.client.EstimateGas(ctx, msg); err == nil {
			gasLimit = estimated * 120 / 100 // 20% headroom
		}
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	chainID := big.NewInt(e.network.ChainID)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), e.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signedTx, nil
}

func (e *EVMConnector) gasPrice(ctx context.Context) (*big.Int, error) {
	if e.network.GasPrice != nil {
		return big.NewInt(*e.network.GasPrice), nil
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

// Balance reads the wallet's balance of a token in main units.
func (e *EVMConnector) Balance(ctx context.Context, tokenAddress string, decimals int) (decimal.Decimal, error) {
	if tokenAddress == "" {
		raw, err := e.client.BalanceAt(ctx, e.address, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
		}
		return fromBaseUnits(raw, 18), nil
	}

	raw, err := e.erc20Balance(ctx, common.HexToAddress(tokenAddress), e.address)
	if err != nil {
		return decimal.Zero, err
	}
	return fromBaseUnits(raw, decimals), nil
}

func (e *EVMConnector) erc20Balance(ctx context.Context, tokenAddress, account common.Address) (*big.Int, error) {
	parsedABI, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse balanceOf ABI: %w", err)
	}
	data, err := parsedABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}

	msg := ethereum.CallMsg{To: &tokenAddress, Data: data}
	result, err := e.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	balance := new(big.Int)
	balance.SetBytes(result)
	return balance, nil
}

// Close closes the client connection
func (e *EVMConnector) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

// toBaseUnits converts a main-unit decimal string to base units.
func toBaseUnits(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount: %s", amount)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// fromBaseUnits converts base units back to a main-unit decimal.
func fromBaseUnits(raw *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(int32(-decimals))
}
