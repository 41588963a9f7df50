package ranges

import (
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sslScope/internal/model"
	"sslScope/internal/v3math"
)

var (
	testPool  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testVault = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func sqrtAt(tick int32) *big.Int {
	return v3math.TickToSqrtPrice(tick)
}

func assertBounds(t *testing.T, got model.RangeBounds, lower, upper int32) {
	t.Helper()
	if got.Lower.Cmp(sqrtAt(lower)) != 0 || got.Upper.Cmp(sqrtAt(upper)) != 0 {
		t.Fatalf("bounds mismatch: got [%s, %s], want ticks [%d, %d]", got.Lower, got.Upper, lower, upper)
	}
}

func vaultWithPosition(lower, upper int32, liquidity int64) *model.VaultState {
	return &model.VaultState{
		Pool:     testPool,
		Lower:    lower,
		Upper:    upper,
		Position: &model.Position{Liquidity: big.NewInt(liquidity)},
	}
}

func TestResolveRangeToken1BelowCurrent(t *testing.T) {
	got := ResolveRange(nil, model.AssetToken1, 100, 10, 3)
	assertBounds(t, got, 70, 90)
}

func TestResolveRangeToken0FromCurrent(t *testing.T) {
	got := ResolveRange(nil, model.AssetToken0, 100, 10, 3)
	assertBounds(t, got, 100, 130)
}

func TestResolveRangeSingleStep(t *testing.T) {
	assertBounds(t, ResolveRange(nil, model.AssetToken1, -55, 60, 1), -115, -115)
	assertBounds(t, ResolveRange(nil, model.AssetToken0, -55, 60, 1), -55, 5)
}

func TestResolveRangeUndefined(t *testing.T) {
	got := ResolveRange(nil, model.AssetNone, 100, 10, 3)
	if got.Lower.Sign() != 0 || got.Upper.Sign() != 0 {
		t.Fatalf("expected zero bounds, got [%s, %s]", got.Lower, got.Upper)
	}
	if got.Defined() {
		t.Fatalf("zero bounds must not be defined")
	}
}

func TestResolveRangeExistingPosition(t *testing.T) {
	existing := vaultWithPosition(50, 80, 1)
	for _, asset := range []model.Asset{model.AssetNone, model.AssetToken0, model.AssetToken1} {
		got := ResolveRange(existing, asset, 100, 10, 3)
		assertBounds(t, got, 50, 80)
		if !got.Defined() {
			t.Fatalf("position bounds should be defined")
		}
	}
}

func TestResolveRangeIgnoresEmptyPosition(t *testing.T) {
	existing := vaultWithPosition(50, 80, 0)
	assertBounds(t, ResolveRange(existing, model.AssetToken0, 100, 10, 3), 100, 130)

	existing.Position = nil
	assertBounds(t, ResolveRange(existing, model.AssetToken1, 100, 10, 3), 70, 90)
}

func TestResolveRangeClampsToDomain(t *testing.T) {
	got := ResolveRange(nil, model.AssetToken0, v3math.MaxTick-5, 60, 10)
	assertBounds(t, got, v3math.MaxTick-5, v3math.MaxTick)
}

func TestRangeTicksLargeCountDoesNotWrap(t *testing.T) {
	lower, upper, ok := RangeTicks(nil, model.AssetToken0, 1000, 200, 10737419)
	if !ok || lower != 1000 || upper != v3math.MaxTick {
		t.Fatalf("token0 range = [%d, %d] ok=%v, want [1000, %d]", lower, upper, ok, v3math.MaxTick)
	}

	lower, upper, ok = RangeTicks(nil, model.AssetToken1, 1000, 200, 10737419)
	if !ok || lower != v3math.MinTick || upper != 800 {
		t.Fatalf("token1 range = [%d, %d] ok=%v, want [%d, 800]", lower, upper, ok, v3math.MinTick)
	}

	lower, upper, _ = RangeTicks(nil, model.AssetToken0, v3math.MaxTick-10, 16384, math.MaxInt32)
	if lower > upper || upper != v3math.MaxTick {
		t.Fatalf("max count range = [%d, %d]", lower, upper)
	}

	for _, asset := range []model.Asset{model.AssetToken0, model.AssetToken1} {
		got := ResolveRange(nil, asset, -300, 200, 10737419)
		if got.Lower.Cmp(got.Upper) > 0 {
			t.Fatalf("asset %v: lower bound %s above upper %s", asset, got.Lower, got.Upper)
		}
	}
}

type fakePools struct {
	state model.PoolState
	err   error
}

func (f fakePools) PoolState(context.Context, common.Address) (model.PoolState, error) {
	return f.state, f.err
}

type fakeVaults struct {
	mu    sync.Mutex
	state model.VaultState
	err   error
	calls int
}

func (f *fakeVaults) VaultState(context.Context, common.Address) (model.VaultState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.state, f.err
}

func (f *fakeVaults) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testPoolState() model.PoolState {
	return model.PoolState{
		Address:     testPool,
		Token0:      model.TokenMeta{Address: "0xa", Decimals: 18, DecimalsKnown: true},
		Token1:      model.TokenMeta{Address: "0xb", Decimals: 18, DecimalsKnown: true},
		FeeTier:     500,
		TickSpacing: 10,
		Tick:        100,
	}
}

func TestResolverResolveDepositRange(t *testing.T) {
	state := testPoolState()
	state.TickSpacing = 0
	r := NewResolver(fakePools{state: state}, nil, nil)

	res, err := r.ResolveDepositRange(context.Background(), testPool, nil, model.AssetToken1, 3)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.LowerTick != 70 || res.UpperTick != 90 || res.TickSpacing != 10 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if !res.Defined || res.FromPosition {
		t.Fatalf("unexpected flags: %+v", res)
	}
	assertBounds(t, res.Bounds, 70, 90)
}

func TestResolverUsesVaultPosition(t *testing.T) {
	vaults := &fakeVaults{state: *vaultWithPosition(50, 80, 7)}
	r := NewResolver(fakePools{state: testPoolState()}, vaults, nil)

	vault := testVault
	res, err := r.ResolveDepositRange(context.Background(), testPool, &vault, model.AssetToken0, 3)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.FromPosition || res.LowerTick != 50 || res.UpperTick != 80 {
		t.Fatalf("expected position bounds, got %+v", res)
	}
}

func TestResolverErrors(t *testing.T) {
	cause := errors.New("rpc down")
	r := NewResolver(fakePools{err: cause}, nil, nil)
	if _, err := r.ResolveDepositRange(context.Background(), testPool, nil, model.AssetToken0, 3); !errors.Is(err, cause) {
		t.Fatalf("expected pool error, got %v", err)
	}

	r = NewResolver(fakePools{state: testPoolState()}, nil, nil)
	vault := testVault
	if _, err := r.ResolveDepositRange(context.Background(), testPool, &vault, model.AssetToken0, 3); err == nil {
		t.Fatalf("expected error without vault reader")
	}
	if _, err := r.ResolveDepositRange(context.Background(), testPool, nil, model.AssetToken0, 0); err == nil {
		t.Fatalf("expected error for zero tick count")
	}
}

func TestBuildStatus(t *testing.T) {
	vs := model.VaultState{
		Pool:        testPool,
		Lower:       -200,
		Upper:       200,
		RangeSize:   400,
		IsInRange:   true,
		LastRerange: time.Unix(1700000000, 0),
	}
	status := BuildStatus(vs, testPoolState())

	if status.RangeTicks != 40 {
		t.Fatalf("range ticks = %d, want 40", status.RangeTicks)
	}
	labels := make([]string, 0, len(status.Prices))
	for _, p := range status.Prices {
		labels = append(labels, p.Label)
	}
	want := []string{"upper", "current", "lower"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("price order = %v, want %v", labels, want)
		}
	}
	for i := 1; i < len(status.Prices); i++ {
		if status.Prices[i].Price.GreaterThan(status.Prices[i-1].Price) {
			t.Fatalf("prices not descending: %v", status.Prices)
		}
	}
	if !status.IsInRange || !status.LastRerange.Equal(vs.LastRerange) {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPollerKeepsLastSnapshot(t *testing.T) {
	vaults := &fakeVaults{state: model.VaultState{Pool: testPool, Lower: 0, Upper: 100, RangeSize: 100}}
	r := NewResolver(fakePools{state: testPoolState()}, vaults, nil)
	p := NewPoller(r, testVault, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for vaults.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("poller did not poll")
		case <-time.After(time.Millisecond):
		}
	}

	vaults.mu.Lock()
	vaults.err = errors.New("rpc down")
	vaults.mu.Unlock()
	seen := vaults.count()
	for vaults.count() < seen+2 {
		select {
		case <-deadline:
			t.Fatalf("poller stopped polling")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	latest, updated, err := p.Latest()
	if latest == nil || updated.IsZero() {
		t.Fatalf("expected a snapshot")
	}
	if latest.RangeTicks != 10 {
		t.Fatalf("range ticks = %d, want 10", latest.RangeTicks)
	}
	if err == nil {
		t.Fatalf("expected the last poll error to be reported")
	}
}
