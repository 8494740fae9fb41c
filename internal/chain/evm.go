package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"usdc-vault-custody/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const defaultConfirmTimeout = 2 * time.Minute

// backend is the part of ethclient.Client the token client uses.
type backend interface {
	bind.DeployBackend
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

var _ backend = (*ethclient.Client)(nil)
var _ ChainClient = (*Client)(nil)

// Client moves an ERC-20 token out of a single hot wallet.
type Client struct {
	backend        backend
	token          common.Address
	decimals       int32
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	abi            abi.ABI
	confirmTimeout time.Duration
	gasMultiple    float64
	closeFn        func()

	// one transfer at a time so pending nonces never collide
	mu sync.Mutex
}

// NewClient dials the RPC endpoint and loads the hot wallet key.
func NewClient(ctx context.Context, cfg models.ChainConfig, httpClient *http.Client) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url cannot be empty")
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to dial rpc: %w", err)
	}

	c, err := newClient(ctx, ethclient.NewClient(rpcClient), cfg)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	c.closeFn = rpcClient.Close

	zap.L().Info("Chain client initialized",
		zap.String("hot_wallet", c.from.Hex()),
		zap.String("token", c.token.Hex()),
		zap.String("chain_id", c.chainID.String()))
	return c, nil
}

func newClient(ctx context.Context, b backend, cfg models.ChainConfig) (*Client, error) {
	if !common.IsHexAddress(cfg.Token.Address) {
		return nil, fmt.Errorf("invalid token address %q", cfg.Token.Address)
	}
	if cfg.Token.Decimals < 0 {
		return nil, fmt.Errorf("token decimals cannot be negative, got %d", cfg.Token.Decimals)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.HotWalletKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hot wallet key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("unable to parse token abi: %w", err)
	}

	var chainID *big.Int
	if cfg.ChainID > 0 {
		chainID = big.NewInt(cfg.ChainID)
	} else {
		chainID, err = b.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch chain id: %w", err)
		}
	}

	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	gasMultiple := cfg.GasLimitMultiple
	if gasMultiple < 1 {
		gasMultiple = 1
	}

	return &Client{
		backend:        b,
		token:          common.HexToAddress(cfg.Token.Address),
		decimals:       cfg.Token.Decimals,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		abi:            parsed,
		confirmTimeout: confirmTimeout,
		gasMultiple:    gasMultiple,
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *Client) HotWalletAddress() string {
	return c.from.Hex()
}

// BalanceOf returns the token balance of address in human units.
func (c *Client) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, &ChainError{Op: "balanceOf", Err: fmt.Errorf("invalid address %q", address)}
	}

	data, err := c.abi.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, &ChainError{Op: "balanceOf", Err: err}
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, &ChainError{Op: "balanceOf", Err: err}
	}

	values, err := c.abi.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return decimal.Zero, &ChainError{Op: "balanceOf", Err: fmt.Errorf("unexpected balanceOf output: %v", err)}
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, &ChainError{Op: "balanceOf", Err: fmt.Errorf("unexpected balanceOf type %T", values[0])}
	}
	return FromBaseUnits(raw, c.decimals), nil
}

// Transfer sends amount of the token from the hot wallet to address and
// waits for the receipt. The returned ChainError has Submitted unset only
// when the node explicitly rejected the signed transaction.
func (c *Client) Transfer(ctx context.Context, to string, amount decimal.Decimal) (*TransferResult, error) {
	if !common.IsHexAddress(to) {
		return nil, &ChainError{Op: "transfer", Err: fmt.Errorf("invalid destination %q", to)}
	}
	value := ToBaseUnits(amount, c.decimals)
	if value.Sign() <= 0 {
		return nil, &ChainError{Op: "transfer", Err: fmt.Errorf("amount %s is below token precision", amount)}
	}

	data, err := c.abi.Pack("transfer", common.HexToAddress(to), value)
	if err != nil {
		return nil, &ChainError{Op: "transfer", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	signed, err := c.buildTransaction(ctx, data)
	if err != nil {
		return nil, &ChainError{Op: "transfer", Err: err}
	}
	txHash := signed.Hash().Hex()

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		switch {
		case rejectedBeforeBroadcast(err):
			return nil, &ChainError{Op: "transfer", TxHash: txHash, Err: err}
		case isAlreadyKnown(err):
			zap.L().Info("Transfer already known to node, waiting for receipt",
				zap.String("tx_hash", txHash))
		default:
			// Timeouts and dropped connections leave the broadcast state
			// unknown; the signed transaction may still be mined.
			return nil, &ChainError{Op: "transfer", TxHash: txHash, Submitted: true, Err: err}
		}
	}

	zap.L().Info("Transfer submitted",
		zap.String("tx_hash", txHash),
		zap.String("to", to),
		zap.String("amount", amount.String()))

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.backend, signed)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", ErrConfirmationTimeout, err)
		}
		return nil, &ChainError{Op: "transfer", TxHash: txHash, Submitted: true, Err: err}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, &ChainError{Op: "transfer", TxHash: txHash, Submitted: true, Err: ErrTransferReverted}
	}

	return &TransferResult{TxHash: txHash, GasUsed: receipt.GasUsed}, nil
}

// rejectedBeforeBroadcast reports whether the node answered the send with a
// JSON-RPC error, meaning it refused the transaction. Transport errors get no
// such answer and are not a rejection.
func rejectedBeforeBroadcast(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && !isAlreadyKnown(err)
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func (c *Client) buildTransaction(ctx context.Context, data []byte) (*types.Transaction, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch gas price: %w", err)
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("unable to estimate gas: %w", err)
	}
	gas = uint64(math.Ceil(float64(gas) * c.gasMultiple))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.token,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("unable to sign transaction: %w", err)
	}
	return signed, nil
}

// Receipt looks up a transaction outcome, used when resolving withdrawals
// whose confirmation was never observed.
func (c *Client) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, &ChainError{Op: "receipt", TxHash: txHash, Err: err}
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: block,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}
