package dex

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sslScope/internal/model"
)

const defaultLensConcurrency = 4

type populatedTick struct {
	Tick           *big.Int `json:"tick"`
	LiquidityNet   *big.Int `json:"liquidityNet"`
	LiquidityGross *big.Int `json:"liquidityGross"`
}

// TickLensReader reads initialized ticks through the TickLens periphery
// contract, one bitmap word per call.
type TickLensReader struct {
	caller      ContractCaller
	lens        common.Address
	concurrency int
	logger      *zap.Logger
}

func NewTickLensReader(caller ContractCaller, lens common.Address, concurrency int, logger *zap.Logger) *TickLensReader {
	if concurrency <= 0 {
		concurrency = defaultLensConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickLensReader{caller: caller, lens: lens, concurrency: concurrency, logger: logger}
}

// InitializedTicks returns the initialized ticks within the query range in
// ascending order.
func (r *TickLensReader) InitializedTicks(ctx context.Context, q model.TickQuery) ([]model.Tick, error) {
	words, err := SplitTickRange(q.Lower, q.Upper, q.TickSpacing)
	if err != nil {
		return nil, err
	}
	lensABI, err := TickLensABI()
	if err != nil {
		return nil, fmt.Errorf("parse tick lens abi: %w", err)
	}

	var block *big.Int
	if q.BlockNumber > 0 {
		block = new(big.Int).SetUint64(q.BlockNumber)
	}

	var (
		mu    sync.Mutex
		ticks []model.Tick
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, word := range words {
		word := word
		g.Go(func() error {
			got, err := r.wordTicks(gctx, lensABI, q.Pool, BitmapWord(word.Lower, q.TickSpacing), block)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, t := range got {
				if t.TickIdx >= word.Lower && t.TickIdx <= word.Upper {
					ticks = append(ticks, t)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(ticks, func(i, j int) bool { return ticks[i].TickIdx < ticks[j].TickIdx })
	r.logger.Debug("tick lens read",
		zap.String("pool", q.Pool.Hex()),
		zap.Int("words", len(words)),
		zap.Int("ticks", len(ticks)),
	)
	return ticks, nil
}

func (r *TickLensReader) wordTicks(ctx context.Context, lensABI abi.ABI, pool common.Address, word int16, block *big.Int) ([]model.Tick, error) {
	values, err := callContractMethod(ctx, r.caller, r.lens, lensABI, "getPopulatedTicksInWord", block, pool, word)
	if err != nil {
		return nil, fmt.Errorf("word %d: %w", word, err)
	}

	var raw []populatedTick
	converted := abi.ConvertType(values[0], &raw)
	populated, ok := converted.(*[]populatedTick)
	if !ok {
		return nil, fmt.Errorf("word %d: unexpected output type %T", word, values[0])
	}

	ticks := make([]model.Tick, 0, len(*populated))
	for _, p := range *populated {
		idx, err := int24FromBig(p.Tick)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", word, err)
		}
		ticks = append(ticks, model.Tick{
			TickIdx:        idx,
			LiquidityNet:   new(big.Int).Set(p.LiquidityNet),
			LiquidityGross: new(big.Int).Set(p.LiquidityGross),
		})
	}
	return ticks, nil
}
