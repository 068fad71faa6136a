package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/db/dbtest"
	"stream-boost-bot/internal/ledger"
)

type fakeGateway struct {
	mu        sync.Mutex
	statuses  map[string]db.PaymentStatus
	errs      map[string]error
	invoices  int
	createErr error
	block     chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]db.PaymentStatus{}, errs: map[string]error{}}
}

func (g *fakeGateway) set(id string, status db.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = status
}

func (g *fakeGateway) CreateInvoice(_ context.Context, _ int64, amount decimal.Decimal) (Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return Invoice{}, g.createErr
	}
	g.invoices++
	id := "INV-" + decimal.NewFromInt(int64(g.invoices)).String()
	g.statuses[id] = db.PaymentCreated
	return Invoice{ID: id, PayURL: "https://pay/" + id, AmountUSDT: amount}, nil
}

func (g *fakeGateway) CheckStatus(ctx context.Context, id string) (db.PaymentStatus, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errs[id]; err != nil {
		return "", err
	}
	return g.statuses[id], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts map[int64][]string
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.texts == nil {
		n.texts = map[int64][]string{}
	}
	n.texts[userID] = append(n.texts[userID], text)
	return nil
}

type reconcilerEnv struct {
	gdb      *gorm.DB
	ledger   *ledger.Ledger
	payments *db.Payments
	gateway  *fakeGateway
	notifier *recordingNotifier
	rec      *Reconciler
}

func newReconcilerEnv(t *testing.T, users ...int64) *reconcilerEnv {
	t.Helper()
	gdb := dbtest.New(t)
	for _, id := range users {
		_, _, err := db.NewUsers(gdb).Touch(context.Background(), id, db.UserInfo{})
		require.NoError(t, err)
	}
	env := &reconcilerEnv{
		gdb:      gdb,
		ledger:   ledger.New(gdb),
		payments: db.NewPayments(gdb),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{},
	}
	env.rec = NewReconciler(env.payments, env.gateway, env.ledger, env.notifier, time.Second, zap.NewNop())
	return env
}

func (e *reconcilerEnv) invoice(t *testing.T, id string, userID int64, amount string) {
	t.Helper()
	require.NoError(t, e.payments.Create(context.Background(), &db.Payment{
		InvoiceID: id, UserID: userID, Amount: decimal.RequireFromString(amount),
	}))
	e.gateway.set(id, db.PaymentCreated)
}

func (e *reconcilerEnv) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	bal, err := e.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return bal
}

func TestReconcilerSettlesOnce(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1)
	env.invoice(t, "INV-1", 1, "1000")
	env.gateway.set("INV-1", db.PaymentPaid)

	res, err := env.rec.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Checked: 1, Settled: 1}, res)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(1000)))

	p, err := env.payments.Get(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPaid, p.Status)
	assert.NotNil(t, p.PaidAt)
	assert.Len(t, env.notifier.texts[1], 1)

	res, err = env.rec.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{}, res)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(1000)))

	settled, err := env.rec.Settle(ctx, "INV-1")
	require.NoError(t, err)
	assert.False(t, settled)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(1000)))
	assert.Len(t, env.notifier.texts[1], 1)
}

func TestReconcilerFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1, 2)
	env.invoice(t, "INV-1", 1, "100")
	env.invoice(t, "INV-2", 2, "200")
	env.invoice(t, "INV-3", 2, "300")
	env.gateway.errs["INV-1"] = ErrGatewayUnavailable
	env.gateway.set("INV-2", db.PaymentPaid)
	env.gateway.set("INV-3", db.PaymentExpired)

	res, err := env.rec.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Checked: 3, Settled: 1, Expired: 1, Failed: 1}, res)

	p, err := env.payments.Get(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCreated, p.Status)
	assert.True(t, env.balance(t, 1).IsZero())
	assert.True(t, env.balance(t, 2).Equal(decimal.NewFromInt(200)))

	// в следующем цикле шлюз снова доступен
	delete(env.gateway.errs, "INV-1")
	env.gateway.set("INV-1", db.PaymentPaid)
	res, err = env.rec.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Checked: 1, Settled: 1}, res)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(100)))
}

func TestReconcilerTimeoutLeavesPaymentCreated(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1)
	env.rec.timeout = 20 * time.Millisecond
	env.gateway.block = make(chan struct{})
	env.invoice(t, "INV-1", 1, "100")
	env.gateway.set("INV-1", db.PaymentPaid)

	res, err := env.rec.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Checked: 1, Failed: 1}, res)

	p, err := env.payments.Get(ctx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCreated, p.Status)
}

func TestConcurrentSettlementCreditsOnce(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1)
	env.invoice(t, "INV-1", 1, "500")
	env.gateway.set("INV-1", db.PaymentPaid)

	var wg sync.WaitGroup
	var mu sync.Mutex
	settledCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.rec.Settle(ctx, "INV-1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				settledCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, settledCount)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(500)))
}

func TestCheckPayment(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1, 2)
	env.invoice(t, "INV-1", 1, "250")

	p, err := env.rec.CheckPayment(ctx, 1, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCreated, p.Status)

	_, err = env.rec.CheckPayment(ctx, 2, "INV-1")
	assert.ErrorIs(t, err, db.ErrNotFound)

	env.gateway.set("INV-1", db.PaymentPaid)
	p, err = env.rec.CheckPayment(ctx, 1, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPaid, p.Status)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(250)))
	assert.Empty(t, env.notifier.texts[1])

	p, err = env.rec.CheckPayment(ctx, 1, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPaid, p.Status)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(250)))
}

func TestCheckoutPlaceOrder(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1)
	orders := db.NewOrders(env.gdb)
	checkout := NewCheckout(env.ledger, orders)
	draft := db.Order{UserID: 1, Platform: "twitch", Service: "chat_ru", Channel: "streamer",
		StreamDate: "2026-10-20", StartTime: "18:00", DurationMin: 120, Amount: decimal.RequireFromString("200.00")}

	require.NoError(t, env.ledger.Transact(ctx, 1, func(tx *ledger.Tx) error {
		return tx.Set(decimal.NewFromInt(150))
	}))
	_, _, err := checkout.PlaceOrder(ctx, draft)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	count, _, err := orders.UserTotals(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(150)))

	require.NoError(t, env.ledger.Transact(ctx, 1, func(tx *ledger.Tx) error {
		return tx.Set(decimal.NewFromInt(500))
	}))
	order, balance, err := checkout.PlaceOrder(ctx, draft)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, db.OrderPending, order.Status)
	assert.Equal(t, db.PayFromBalance, order.PaymentMethod)
	assert.True(t, balance.Equal(decimal.NewFromInt(300)))

	stored, err := orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(200)))
	assert.True(t, env.balance(t, 1).Equal(decimal.NewFromInt(300)))
}

type fixedRate struct{ rate decimal.Decimal }

func (f fixedRate) Quote(context.Context) decimal.Decimal { return f.rate }

func TestTopUps(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1)
	topups := NewTopUps(env.gateway, fixedRate{decimal.RequireFromString("92.5")}, env.payments, zap.NewNop())

	q := topups.Quote(ctx, decimal.NewFromInt(1000))
	assert.Equal(t, "10.81", q.AmountUSDT.StringFixed(2))

	inv, err := topups.Create(ctx, 1, q)
	require.NoError(t, err)
	p, err := env.payments.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCreated, p.Status)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(1000)))

	env.gateway.createErr = errors.New("timeout")
	_, err = topups.Create(ctx, 1, q)
	require.Error(t, err)
	list, err := env.payments.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReconcilerChecksEveryPage(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1, 2)
	env.rec.batch = 3
	for i := 0; i < 7; i++ {
		env.invoice(t, fmt.Sprintf("OLD-%d", i), 1, "100")
	}
	env.invoice(t, "PAID-1", 2, "1000")
	env.gateway.set("PAID-1", db.PaymentPaid)

	res, err := env.rec.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Checked: 8, Settled: 1}, res)
	assert.True(t, env.balance(t, 2).Equal(decimal.NewFromInt(1000)))

	// оплаченный в прошлом цикле счёт больше не проверяется
	env.invoice(t, "PAID-2", 2, "500")
	env.gateway.set("PAID-2", db.PaymentPaid)
	env.gateway.set("OLD-6", db.PaymentExpired)
	res, err = env.rec.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Checked: 8, Settled: 1, Expired: 1}, res)
	assert.True(t, env.balance(t, 2).Equal(decimal.NewFromInt(1500)))
}

func TestTopUpsRejectInvalidAmount(t *testing.T) {
	ctx := context.Background()
	env := newReconcilerEnv(t, 1)
	topups := NewTopUps(env.gateway, fixedRate{decimal.NewFromInt(80)}, env.payments, zap.NewNop())

	for _, amount := range []string{"100.555", "0", "-5", "1000000.01"} {
		_, err := topups.Create(ctx, 1, topups.Quote(ctx, decimal.RequireFromString(amount)))
		assert.ErrorIs(t, err, ErrInvalidTopUp, amount)
	}
	assert.Zero(t, env.gateway.invoices, "gateway is not called for invalid amounts")
	list, err := env.payments.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = topups.Create(ctx, 1, topups.Quote(ctx, decimal.NewFromInt(MaxTopUpRub)))
	require.NoError(t, err)
}
