package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"sslScope/internal/model"
)

type callKey struct {
	to       common.Address
	selector [4]byte
}

// fakeCaller answers eth_call with ABI-packed outputs registered per
// contract and method.
type fakeCaller struct {
	mu        sync.Mutex
	responses map[callKey][]byte
	calls     map[callKey]int
	head      uint64
	blocks    []*big.Int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[callKey][]byte),
		calls:     make(map[callKey]int),
	}
}

func (f *fakeCaller) set(t *testing.T, to common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	m, ok := parsed.Methods[method]
	if !ok {
		t.Fatalf("unknown method %s", method)
	}
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	f.responses[callKey{to: to, selector: sel}] = out
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	key := callKey{to: *msg.To, selector: sel}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	f.blocks = append(f.blocks, block)
	out, ok := f.responses[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return out, nil
}

func (f *fakeCaller) callCount(to common.Address, parsed abi.ABI, method string) int {
	var sel [4]byte
	copy(sel[:], parsed.Methods[method].ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[callKey{to: to, selector: sel}]
}

type headCaller struct {
	*fakeCaller
}

func (h headCaller) LatestBlockNumber(context.Context) (uint64, error) {
	return h.head, nil
}

var (
	testPool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken0 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testToken1 = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func seedPool(t *testing.T, f *fakeCaller) {
	t.Helper()
	poolABI, err := V3PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	erc20, err := erc20ABI(erc20String)
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	f.set(t, testPool, poolABI, "token0", testToken0)
	f.set(t, testPool, poolABI, "token1", testToken1)
	f.set(t, testPool, poolABI, "fee", big.NewInt(3000))
	f.set(t, testPool, poolABI, "tickSpacing", big.NewInt(60))
	f.set(t, testPool, poolABI, "liquidity", big.NewInt(123456789))
	f.set(t, testPool, poolABI, "slot0",
		new(big.Int).Lsh(big.NewInt(1), 96),
		big.NewInt(-887),
		uint16(0), uint16(1), uint16(1), uint8(0), true,
	)

	f.set(t, testToken0, erc20, "decimals", uint8(6))
	f.set(t, testToken0, erc20, "symbol", "USDC")
	f.set(t, testToken0, erc20, "name", "USD Coin")
}

func TestPoolReaderPoolState(t *testing.T) {
	f := newFakeCaller()
	f.head = 19000000
	seedPool(t, f)

	reader := NewPoolReader(headCaller{f}, nil)
	state, err := reader.PoolState(context.Background(), testPool)
	if err != nil {
		t.Fatalf("pool state: %v", err)
	}

	if state.FeeTier != 3000 || state.TickSpacing != 60 {
		t.Fatalf("unexpected meta: fee=%d spacing=%d", state.FeeTier, state.TickSpacing)
	}
	if state.Tick != -887 {
		t.Fatalf("unexpected tick: %d", state.Tick)
	}
	if state.Liquidity.Cmp(big.NewInt(123456789)) != 0 {
		t.Fatalf("unexpected liquidity: %s", state.Liquidity)
	}
	if state.BlockNumber != 19000000 {
		t.Fatalf("unexpected block: %d", state.BlockNumber)
	}
	if !state.Token0.DecimalsKnown || state.Token0.Decimals != 6 || state.Token0.Symbol != "USDC" {
		t.Fatalf("unexpected token0: %+v", state.Token0)
	}
	if state.Token1.DecimalsKnown {
		t.Fatalf("token1 decimals should be unknown: %+v", state.Token1)
	}
	if state.TokensResolved() {
		t.Fatalf("pool should not report resolved tokens")
	}
}

func TestPoolReaderCachesMetadata(t *testing.T) {
	f := newFakeCaller()
	seedPool(t, f)
	reader := NewPoolReader(f, nil)

	for i := 0; i < 3; i++ {
		if _, err := reader.PoolState(context.Background(), testPool); err != nil {
			t.Fatalf("pool state: %v", err)
		}
	}

	poolABI, _ := V3PoolABI()
	erc20, _ := erc20ABI(erc20String)
	if got := f.callCount(testPool, poolABI, "fee"); got != 1 {
		t.Fatalf("fee called %d times, want 1", got)
	}
	if got := f.callCount(testPool, poolABI, "slot0"); got != 3 {
		t.Fatalf("slot0 called %d times, want 3", got)
	}
	if got := f.callCount(testToken0, erc20, "decimals"); got != 1 {
		t.Fatalf("token0 decimals called %d times, want 1", got)
	}
}

func TestFetchTokenMetaBytes32Fallback(t *testing.T) {
	f := newFakeCaller()
	stringABI, _ := erc20ABI(erc20String)
	bytesABI, _ := erc20ABI(erc20Bytes32)

	f.set(t, testToken1, stringABI, "decimals", uint8(18))
	var symbol [32]byte
	copy(symbol[:], "MKR")
	f.set(t, testToken1, bytesABI, "symbol", symbol)

	meta, err := FetchTokenMeta(context.Background(), f, testToken1, nil)
	if err != nil {
		t.Fatalf("fetch token meta: %v", err)
	}
	if meta.Symbol != "MKR" || meta.Decimals != 18 || !meta.DecimalsKnown {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestTickLensInitializedTicks(t *testing.T) {
	f := newFakeCaller()
	lens := common.HexToAddress("0x2222222222222222222222222222222222222222")
	lensABI, err := TickLensABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	// Both words resolve to the same selector, so the fake serves one
	// payload for every word. Range filtering must drop the duplicates.
	f.set(t, lens, lensABI, "getPopulatedTicksInWord", []populatedTick{
		{Tick: big.NewInt(-60), LiquidityNet: big.NewInt(500), LiquidityGross: big.NewInt(500)},
		{Tick: big.NewInt(120), LiquidityNet: big.NewInt(-500), LiquidityGross: big.NewInt(500)},
		{Tick: big.NewInt(15360), LiquidityNet: big.NewInt(7), LiquidityGross: big.NewInt(7)},
	})

	reader := NewTickLensReader(f, lens, 2, nil)
	got, err := reader.InitializedTicks(context.Background(), model.TickQuery{
		Pool:        testPool,
		Lower:       -600,
		Upper:       600,
		TickSpacing: 60,
	})
	if err != nil {
		t.Fatalf("initialized ticks: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 ticks, got %d: %+v", len(got), got)
	}
	if got[0].TickIdx != -60 || got[1].TickIdx != 120 {
		t.Fatalf("unexpected ticks: %+v", got)
	}
	if got[1].LiquidityNet.Cmp(big.NewInt(-500)) != 0 {
		t.Fatalf("unexpected net: %s", got[1].LiquidityNet)
	}
}

func TestVaultState(t *testing.T) {
	f := newFakeCaller()
	vault := common.HexToAddress("0x3333333333333333333333333333333333333333")
	user := common.HexToAddress("0x4444444444444444444444444444444444444444")
	vaultABI, err := VaultABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	f.set(t, vault, vaultABI, "pool", testPool)
	f.set(t, vault, vaultABI, "user", user)
	f.set(t, vault, vaultABI, "token0", testToken0)
	f.set(t, vault, vaultABI, "token1", testToken1)
	f.set(t, vault, vaultABI, "lower", big.NewInt(-120))
	f.set(t, vault, vaultABI, "upper", big.NewInt(60))
	f.set(t, vault, vaultABI, "rangeSize", big.NewInt(180))
	f.set(t, vault, vaultABI, "isInRange", true)
	f.set(t, vault, vaultABI, "lastRerange", big.NewInt(1700000000))
	f.set(t, vault, vaultABI, "getPosition",
		big.NewInt(1000), big.NewInt(0), big.NewInt(0), big.NewInt(3), big.NewInt(4))

	state, err := NewVaultReader(f).VaultState(context.Background(), vault)
	if err != nil {
		t.Fatalf("vault state: %v", err)
	}

	if state.Pool != testPool || state.User != user {
		t.Fatalf("unexpected addresses: %+v", state)
	}
	if state.Lower != -120 || state.Upper != 60 || state.RangeSize != 180 {
		t.Fatalf("unexpected ticks: %+v", state)
	}
	if !state.IsInRange {
		t.Fatalf("expected in range")
	}
	if !state.LastRerange.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected last rerange: %s", state.LastRerange)
	}
	if !state.HasPosition() || state.Position.TokensOwed1.Int64() != 4 {
		t.Fatalf("unexpected position: %+v", state.Position)
	}
}

func TestVaultStateRevert(t *testing.T) {
	f := newFakeCaller()
	vault := common.HexToAddress("0x3333333333333333333333333333333333333333")
	if _, err := NewVaultReader(f).VaultState(context.Background(), vault); err == nil {
		t.Fatalf("expected error for reverted calls")
	}
}

func TestPositionKey(t *testing.T) {
	owner := common.HexToAddress("0x5555555555555555555555555555555555555555")

	packed := append(common.CopyBytes(owner.Bytes()), 0xff, 0xff, 0x88, 0x00, 0x00, 0x78)
	want := crypto.Keccak256Hash(packed)

	if got := PositionKey(owner, -120, 120); got != want {
		t.Fatalf("position key mismatch: %s != %s", got.Hex(), want.Hex())
	}
	if PositionKey(owner, -120, 120) == PositionKey(owner, -60, 120) {
		t.Fatalf("different ranges must produce different keys")
	}
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{" 0x1111111111111111111111111111111111111111 ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != testPool {
		t.Fatalf("unexpected addresses: %v", got)
	}
	if _, err := ParseAddress("0x123"); err == nil {
		t.Fatalf("expected error for short address")
	}
}
