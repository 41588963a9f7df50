package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"sslScope/internal/metrics"
)

// Options tunes contract call behaviour.
type Options struct {
	// MaxRetries is the number of extra attempts for transport errors.
	MaxRetries   int
	RetryBackoff time.Duration
	CallTimeout  time.Duration
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	opts      Options
	logger    *zap.Logger
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts,
		logger:    logger,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// CheckChainID fails when the endpoint serves a different chain than want.
// A zero want skips the check.
func (c *Client) CheckChainID(ctx context.Context, want uint64) error {
	if want == 0 {
		return nil
	}
	got, err := c.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !got.IsUint64() || got.Uint64() != want {
		return fmt.Errorf("chain id mismatch: endpoint %s, configured %d", got, want)
	}
	return nil
}

// CallContract performs an eth_call, retrying transport failures up to
// MaxRetries times. Reverts are returned immediately.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method := selector(msg.Data)
	return retry.DoWithData(
		func() ([]byte, error) {
			callCtx := ctx
			if c.opts.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
				defer cancel()
			}
			return c.ethClient.CallContract(callCtx, msg, blockNumber)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.opts.MaxRetries)+1),
		retry.Delay(c.opts.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryableErr),
		retry.OnRetry(func(n uint, err error) {
			c.opts.Metrics.RPCRetry(method)
			c.logger.Warn("eth_call retry",
				zap.String("to", addressOrEmpty(msg.To)),
				zap.String("method", method),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
}

// IsRetryableErr reports whether an eth_call error is worth another attempt.
func IsRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, permanent := range []string{"execution reverted", "out of gas", "invalid opcode", "context canceled"} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}

func selector(data []byte) string {
	if len(data) < 4 {
		return "0x"
	}
	return "0x" + hex.EncodeToString(data[:4])
}

func addressOrEmpty(addr *common.Address) string {
	if addr == nil {
		return ""
	}
	return addr.Hex()
}
