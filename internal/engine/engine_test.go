package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/tapbot/internal/config"
	"github.com/alanyoungcy/tapbot/internal/domain"
	"github.com/alanyoungcy/tapbot/internal/feed"
	"github.com/alanyoungcy/tapbot/internal/grid"
	"github.com/alanyoungcy/tapbot/internal/ledger"
	"github.com/alanyoungcy/tapbot/internal/monitor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway records submissions and can be made to block, fail, or
// reject orders.
type fakeGateway struct {
	mu        sync.Mutex
	requests  []domain.MarketOrderRequest
	connected bool
	balance   float64
	result    domain.OrderResult
	err       error
	block     chan struct{} // when non-nil, SubmitMarketOrder waits on it
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		connected: true,
		balance:   1000,
		result:    domain.OrderResult{Success: true, OrderID: "oid-1"},
	}
}

func (g *fakeGateway) SubmitMarketOrder(ctx context.Context, req domain.MarketOrderRequest) (domain.OrderResult, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.result, g.err
}

func (g *fakeGateway) Connected() bool { return g.connected }

func (g *fakeGateway) WithdrawableBalance(ctx context.Context) (float64, error) {
	return g.balance, nil
}

func (g *fakeGateway) submissions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// fakeFeed is a stand-in price feed with a settable price.
type fakeFeed struct {
	asset     string
	price     float64
	connected bool
}

func (f *fakeFeed) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeFeed) OnTick(feed.TickHandler)             {}
func (f *fakeFeed) OnDisconnect(feed.DownHandler)       {}
func (f *fakeFeed) CurrentPrice() float64               { return f.price }
func (f *fakeFeed) Connected() bool                     { return f.connected }
func (f *fakeFeed) Close()                              {}
func (f *fakeFeed) Snapshot() domain.FeedSnapshot {
	return domain.FeedSnapshot{
		Asset:        f.asset,
		CurrentPrice: f.price,
		Connected:    f.connected,
	}
}

type fixture struct {
	engine  *TapEngine
	gateway *fakeGateway
	feeds   map[string]*fakeFeed
	ledger  *ledger.BetLedger
	cancel  context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := config.Defaults()
	cfg.Engine.DefaultAsset = "ETH"
	cfg.Engine.DefaultBetAmount = 50

	gen, err := grid.NewGenerator(grid.Params{
		RowsPerSide:    cfg.Grid.RowsPerSide,
		TimeWindows:    cfg.Grid.TimeWindows,
		MinMultiplier:  cfg.Grid.MinMultiplier,
		MaxMultiplier:  cfg.Grid.MaxMultiplier,
		BaseMultiplier: cfg.Grid.BaseMultiplier,
		DistanceWeight: cfg.Grid.DistanceWeight,
		TimeDecay:      cfg.Grid.TimeDecay,
	})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	specs := make([]domain.AssetSpec, len(cfg.Assets))
	for i, a := range cfg.Assets {
		specs[i] = a.Spec()
	}

	gw := newFakeGateway()
	l := ledger.New()
	m := monitor.New(l, 100*time.Millisecond, discardLogger())

	e := New(cfg.Engine, specs, "ws://unused", gw, gw, l, m, gen, discardLogger())

	feeds := make(map[string]*fakeFeed)
	e.newFeed = func(symbol string) priceFeed {
		ff := &fakeFeed{asset: symbol, price: 100, connected: true}
		feeds[symbol] = ff
		return ff
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.runCtx = ctx
	if err := e.ensureFeed("ETH"); err != nil {
		t.Fatalf("ensureFeed() error = %v", err)
	}
	e.refreshBalance(ctx)

	return &fixture{engine: e, gateway: gw, feeds: feeds, ledger: l, cancel: cancel}
}

func longBox() domain.GridBox {
	return domain.GridBox{
		ID:         "ETH-long-r4-c1",
		Row:        4,
		Col:        1,
		Price:      105,
		TimeWindow: 10,
		Multiplier: 2.0,
		Direction:  domain.DirectionLong,
	}
}

func TestPlaceBet_Success(t *testing.T) {
	f := newFixture(t)

	bet, err := f.engine.PlaceBet(context.Background(), longBox())
	if err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}

	if bet.Asset != "ETH" || bet.Direction != domain.DirectionLong {
		t.Errorf("bet = %+v, want long ETH", bet)
	}
	if bet.EntryPrice != 100 {
		t.Errorf("EntryPrice = %v, want 100", bet.EntryPrice)
	}
	if bet.TargetPrice != 105 || bet.Multiplier != 2.0 || bet.Stake != 50 {
		t.Errorf("bet = %+v, want target 105 multiplier 2 stake 50", bet)
	}
	if got := bet.ExpiresAt.Sub(bet.PlacedAt); got != 10*time.Second {
		t.Errorf("window = %v, want 10s", got)
	}
	if got := f.gateway.submissions(); got != 1 {
		t.Errorf("submissions = %d, want 1", got)
	}
	if got := f.ledger.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}

	req := f.gateway.requests[0]
	if !req.IsBuy {
		t.Error("long bet should submit a buy order")
	}
	if req.AssetIndex != 1 {
		t.Errorf("AssetIndex = %d, want 1 (ETH)", req.AssetIndex)
	}
}

func TestPlaceBet_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetBetAmount(2000); err != nil {
		t.Fatalf("SetBetAmount() error = %v", err)
	}

	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("PlaceBet() error = %v, want ErrInsufficientBalance", err)
	}
	if got := f.gateway.submissions(); got != 0 {
		t.Errorf("submissions = %d, want 0 (rejected before any external call)", got)
	}
	if got := f.ledger.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
}

func TestPlaceBet_BalanceCountsActiveStakes(t *testing.T) {
	f := newFixture(t)
	f.gateway.balance = 120
	f.engine.refreshBalance(context.Background())

	// First 50 fits; after it the available balance is 70, so a second
	// 50 fits; the third must be rejected.
	for i := 0; i < 2; i++ {
		if _, err := f.engine.PlaceBet(context.Background(), longBox()); err != nil {
			t.Fatalf("PlaceBet() #%d error = %v", i+1, err)
		}
	}
	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("third PlaceBet() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestPlaceBet_GatewayDisconnected(t *testing.T) {
	f := newFixture(t)
	f.gateway.connected = false

	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("PlaceBet() error = %v, want ErrNotConnected", err)
	}
	if got := f.gateway.submissions(); got != 0 {
		t.Errorf("submissions = %d, want 0", got)
	}
}

func TestPlaceBet_FeedDisconnected(t *testing.T) {
	f := newFixture(t)
	f.feeds["ETH"].connected = false

	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("PlaceBet() error = %v, want ErrNotConnected", err)
	}
}

func TestPlaceBet_InvalidAsset(t *testing.T) {
	f := newFixture(t)
	f.engine.mu.Lock()
	f.engine.activeAsset = "DOGE"
	f.engine.mu.Unlock()

	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrInvalidAsset) {
		t.Fatalf("PlaceBet() error = %v, want ErrInvalidAsset", err)
	}
}

func TestPlaceBet_RejectedOrder(t *testing.T) {
	f := newFixture(t)
	f.gateway.result = domain.OrderResult{Success: false, Message: "insufficient margin"}

	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrOrderRejected) {
		t.Fatalf("PlaceBet() error = %v, want ErrOrderRejected", err)
	}
	if got := f.ledger.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after rejection", got)
	}
}

func TestPlaceBet_SingleFlight(t *testing.T) {
	f := newFixture(t)
	f.gateway.block = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := f.engine.PlaceBet(context.Background(), longBox())
		first <- err
	}()

	// Wait for the first placement to enter the gateway call.
	deadline := time.After(2 * time.Second)
	for f.engine.placing.Load() == false {
		select {
		case <-deadline:
			t.Fatal("first placement never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrPlacementInFlight) {
		t.Fatalf("concurrent PlaceBet() error = %v, want ErrPlacementInFlight", err)
	}

	close(f.gateway.block)
	if err := <-first; err != nil {
		t.Fatalf("first PlaceBet() error = %v", err)
	}

	if got := f.gateway.submissions(); got != 1 {
		t.Errorf("submissions = %d, want exactly 1", got)
	}
	if got := f.ledger.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}

func TestPlaceBet_AfterClose(t *testing.T) {
	f := newFixture(t)
	f.engine.Close()

	_, err := f.engine.PlaceBet(context.Background(), longBox())
	if !errors.Is(err, domain.ErrEngineClosed) {
		t.Fatalf("PlaceBet() error = %v, want ErrEngineClosed", err)
	}
}

func TestSetBetAmount(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.SetBetAmount(25); err != nil {
		t.Fatalf("SetBetAmount() error = %v", err)
	}
	if got := f.engine.BetAmount(); got != 25 {
		t.Errorf("BetAmount() = %v, want 25", got)
	}

	for _, bad := range []float64{0, -10} {
		if err := f.engine.SetBetAmount(bad); err == nil {
			t.Errorf("SetBetAmount(%v) expected error", bad)
		}
	}
}

func TestSetAsset(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.SetAsset("BTC"); err != nil {
		t.Fatalf("SetAsset() error = %v", err)
	}
	if got := f.engine.ActiveAsset(); got != "BTC" {
		t.Errorf("ActiveAsset() = %q, want BTC", got)
	}
	if _, ok := f.feeds["BTC"]; !ok {
		t.Error("switching asset did not start a BTC feed")
	}

	if err := f.engine.SetAsset("DOGE"); !errors.Is(err, domain.ErrInvalidAsset) {
		t.Errorf("SetAsset(DOGE) error = %v, want ErrInvalidAsset", err)
	}
}

func TestSetAsset_KeepsFeedWithActiveBets(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.PlaceBet(context.Background(), longBox()); err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}

	if err := f.engine.SetAsset("BTC"); err != nil {
		t.Fatalf("SetAsset() error = %v", err)
	}

	// The ETH bet is still active, so its feed must survive the switch.
	if f.engine.lookupFeed("ETH") == nil {
		t.Error("ETH feed reaped while an ETH bet is active")
	}
}

func TestReapIdleFeeds(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.SetAsset("BTC"); err != nil {
		t.Fatalf("SetAsset() error = %v", err)
	}

	// No ETH bets outstanding: the ETH feed should be gone.
	if f.engine.lookupFeed("ETH") != nil {
		t.Error("idle ETH feed not reaped after asset switch")
	}
	if f.engine.lookupFeed("BTC") == nil {
		t.Error("active BTC feed missing")
	}
}

func TestState_BalanceIdentity(t *testing.T) {
	f := newFixture(t)

	if _, err := f.engine.PlaceBet(context.Background(), longBox()); err != nil {
		t.Fatalf("PlaceBet() error = %v", err)
	}

	state := f.engine.State()
	if state.ExternalBalance != 1000 {
		t.Errorf("ExternalBalance = %v, want 1000", state.ExternalBalance)
	}
	if state.AvailableBalance != 950 {
		t.Errorf("AvailableBalance = %v, want 950", state.AvailableBalance)
	}
	if len(state.ActiveBets) != 1 {
		t.Errorf("ActiveBets = %d, want 1", len(state.ActiveBets))
	}
	if state.Asset != "ETH" || state.CurrentPrice != 100 || !state.Connected {
		t.Errorf("state = %+v, want connected ETH at 100", state)
	}
}

func TestGrid_UsesCurrentPrice(t *testing.T) {
	f := newFixture(t)
	f.feeds["ETH"].price = 100.6

	g, err := f.engine.Grid()
	if err != nil {
		t.Fatalf("Grid() error = %v", err)
	}
	if g.Asset != "ETH" {
		t.Errorf("Asset = %q, want ETH", g.Asset)
	}
	if g.BasePrice != 101 {
		t.Errorf("BasePrice = %v, want 101 (round to nearest increment)", g.BasePrice)
	}
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		stake, leverage, price float64
		szDecimals             int
		want                   float64
	}{
		{50, 10, 100, 4, 5.0},
		{50, 10, 97430, 5, 0.00513},
		{10, 0, 100, 2, 0.1}, // zero leverage falls back to 1x
	}
	for _, tt := range tests {
		if got := positionSize(tt.stake, tt.leverage, tt.price, tt.szDecimals); got != tt.want {
			t.Errorf("positionSize(%v, %v, %v, %d) = %v, want %v",
				tt.stake, tt.leverage, tt.price, tt.szDecimals, got, tt.want)
		}
	}
}
