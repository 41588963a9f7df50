package ticks

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"sslScope/internal/model"
	"sslScope/internal/v3math"
)

var testPool = common.HexToAddress("0x1111111111111111111111111111111111111111")

func tick(idx int32, net int64) model.Tick {
	gross := net
	if gross < 0 {
		gross = -gross
	}
	return model.Tick{TickIdx: idx, LiquidityNet: big.NewInt(net), LiquidityGross: big.NewInt(gross)}
}

func testState(tick int32, spacing int32, liquidity int64) model.PoolState {
	return model.PoolState{
		Address:     testPool,
		Token0:      model.TokenMeta{Address: "0xa", Decimals: 18, DecimalsKnown: true},
		Token1:      model.TokenMeta{Address: "0xb", Decimals: 18, DecimalsKnown: true},
		FeeTier:     3000,
		TickSpacing: spacing,
		Tick:        tick,
		Liquidity:   big.NewInt(liquidity),
	}
}

func activeLiquidity(data model.PoolTickData) []int64 {
	out := make([]int64, len(data.TicksProcessed))
	for i, t := range data.TicksProcessed {
		out[i] = t.LiquidityActive.Int64()
	}
	return out
}

func tickIndexes(data model.PoolTickData) []int32 {
	out := make([]int32, len(data.TicksProcessed))
	for i, t := range data.TicksProcessed {
		out[i] = t.TickIdx
	}
	return out
}

func TestNormalize(t *testing.T) {
	initialized := []model.Tick{
		tick(0, 50),
		tick(60, 200),
		tick(120, 100),
		tick(180, -300),
	}

	data, err := Normalize(testState(125, 60, 1000), initialized, 3)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if data.ActiveTickIdx != 120 {
		t.Fatalf("active tick = %d, want 120", data.ActiveTickIdx)
	}
	wantIdx := []int32{-60, 0, 60, 120, 180, 240, 300}
	if got := tickIndexes(data); !reflect.DeepEqual(got, wantIdx) {
		t.Fatalf("tick indexes mismatch: %v != %v", got, wantIdx)
	}
	wantLiq := []int64{650, 700, 900, 1000, 700, 700, 700}
	if got := activeLiquidity(data); !reflect.DeepEqual(got, wantLiq) {
		t.Fatalf("active liquidity mismatch: %v != %v", got, wantLiq)
	}
	if data.TicksProcessed[3].LiquidityNet.Int64() != 100 {
		t.Fatalf("active tick should carry its net: %s", data.TicksProcessed[3].LiquidityNet)
	}
}

func TestNormalizeInvariants(t *testing.T) {
	initialized := []model.Tick{
		tick(-600, 40),
		tick(-240, -15),
		tick(-60, 300),
		tick(0, 25),
		tick(180, -100),
		tick(420, -250),
	}

	for _, current := range []int32{-61, -60, -1, 0, 59, 181} {
		data, err := Normalize(testState(current, 60, 5000), initialized, 12)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}

		if len(data.TicksProcessed) != 2*12+1 {
			t.Fatalf("expected %d ticks, got %d", 2*12+1, len(data.TicksProcessed))
		}
		if data.ActiveTickIdx != v3math.FloorTick(current, 60) {
			t.Fatalf("active tick = %d for current %d", data.ActiveTickIdx, current)
		}

		active := 0
		for i, p := range data.TicksProcessed {
			if p.TickIdx == data.ActiveTickIdx {
				active++
				if p.LiquidityActive.Int64() != 5000 {
					t.Fatalf("active tick liquidity = %s, want pool liquidity", p.LiquidityActive)
				}
			}
			if i == 0 {
				continue
			}
			prev := data.TicksProcessed[i-1]
			if p.TickIdx-prev.TickIdx != 60 {
				t.Fatalf("ticks not spaced: %d after %d", p.TickIdx, prev.TickIdx)
			}
			want := new(big.Int).Add(prev.LiquidityActive, p.LiquidityNet)
			if p.LiquidityActive.Cmp(want) != 0 {
				t.Fatalf("cumulative rule broken at %d: %s != %s", p.TickIdx, p.LiquidityActive, want)
			}
		}
		if active != 1 {
			t.Fatalf("expected exactly one active tick, got %d", active)
		}
		if data.ActiveIndex() != 12 {
			t.Fatalf("active index = %d, want 12", data.ActiveIndex())
		}
	}
}

func TestNormalizeClipsAtDomainEdge(t *testing.T) {
	data, err := Normalize(testState(v3math.MaxTick-2, 1, 10), nil, 5)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(data.TicksProcessed) != 5+1+2 {
		t.Fatalf("expected 8 ticks, got %d", len(data.TicksProcessed))
	}
	if last := data.TicksProcessed[len(data.TicksProcessed)-1].TickIdx; last != v3math.MaxTick {
		t.Fatalf("last tick = %d, want %d", last, v3math.MaxTick)
	}

	data, err = Normalize(testState(v3math.MinTick, 1, 10), nil, 5)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(data.TicksProcessed) != 6 || data.TicksProcessed[0].TickIdx != v3math.MinTick {
		t.Fatalf("unexpected low edge: %v", tickIndexes(data))
	}
}

func TestNormalizePrices(t *testing.T) {
	data, err := Normalize(testState(0, 10, 1), nil, 1)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	mid := data.TicksProcessed[1]
	if mid.Price0 != "1" || mid.Price1 != "1" {
		t.Fatalf("tick 0 prices = %s / %s, want 1 / 1", mid.Price0, mid.Price1)
	}
}

func TestNormalizeRejectsBadSpacing(t *testing.T) {
	if _, err := Normalize(testState(0, 0, 1), nil, 1); err == nil {
		t.Fatalf("expected error for zero spacing")
	}
}

type fakePools struct {
	state model.PoolState
	err   error
}

func (f fakePools) PoolState(context.Context, common.Address) (model.PoolState, error) {
	return f.state, f.err
}

type fakeTicks struct {
	ticks []model.Tick
	err   error
	got   *model.TickQuery
}

func (f *fakeTicks) InitializedTicks(_ context.Context, q model.TickQuery) ([]model.Tick, error) {
	f.got = &q
	return f.ticks, f.err
}

func TestFetcherQueriesWindow(t *testing.T) {
	state := testState(125, 0, 1000)
	state.BlockNumber = 42
	reader := &fakeTicks{ticks: []model.Tick{tick(180, -300)}}

	data, err := NewFetcher(fakePools{state: state}, reader, nil, nil).
		FetchTicksSurroundingPrice(context.Background(), testPool, 3)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	want := model.TickQuery{Pool: testPool, Lower: -60, Upper: 300, TickSpacing: 60, BlockNumber: 42}
	if reader.got == nil || !reflect.DeepEqual(*reader.got, want) {
		t.Fatalf("query mismatch: %+v != %+v", reader.got, want)
	}
	if data.TickSpacing != 60 || data.TickCountEachSide != 3 || len(data.TicksProcessed) != 7 {
		t.Fatalf("unexpected data: spacing=%d n=%d len=%d", data.TickSpacing, data.TickCountEachSide, len(data.TicksProcessed))
	}
}

func TestFetcherWrapsErrors(t *testing.T) {
	cause := errors.New("rpc down")

	_, err := NewFetcher(fakePools{err: cause}, &fakeTicks{}, nil, nil).
		FetchTicksSurroundingPrice(context.Background(), testPool, 3)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Op != "pool state" || fetchErr.Pool != testPool {
		t.Fatalf("unexpected fetch error: %+v", fetchErr)
	}
	if !errors.Is(err, ErrFetch) || !errors.Is(err, cause) {
		t.Fatalf("error should match ErrFetch and its cause: %v", err)
	}

	_, err = NewFetcher(fakePools{state: testState(0, 60, 1)}, &fakeTicks{err: cause}, nil, nil).
		FetchTicksSurroundingPrice(context.Background(), testPool, 3)
	if !errors.As(err, &fetchErr) || fetchErr.Op != "initialized ticks" {
		t.Fatalf("expected initialized ticks failure, got %v", err)
	}
}

func TestWindowClipsToDomain(t *testing.T) {
	q := Window(testState(v3math.MinTick+5, 1, 0), 100)
	if q.Lower != v3math.MinTick || q.Upper != v3math.MinTick+105 {
		t.Fatalf("unexpected window: %+v", q)
	}
}
