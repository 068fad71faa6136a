package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/ledger"
	"stream-boost-bot/internal/pricing"
	"stream-boost-bot/internal/services"
)

const testUser int64 = 42

var msk = time.FixedZone("MSK", 3*60*60)

type fakeCheckout struct {
	balance decimal.Decimal
	orders  []db.Order
	err     error
}

func (f *fakeCheckout) PlaceOrder(_ context.Context, order db.Order) (db.Order, decimal.Decimal, error) {
	if f.err != nil {
		return db.Order{}, decimal.Zero, f.err
	}
	if order.Amount.GreaterThan(f.balance) {
		return db.Order{}, decimal.Zero, &ledger.InsufficientFundsError{Balance: f.balance, Required: order.Amount}
	}
	f.balance = f.balance.Sub(order.Amount)
	order.ID = fmt.Sprintf("order-%d", len(f.orders)+1)
	order.Status = db.OrderPending
	order.PaymentMethod = db.PayFromBalance
	f.orders = append(f.orders, order)
	return order, f.balance, nil
}

type fakeTopUps struct {
	rate     decimal.Decimal
	fail     bool
	invoices []services.Quote
}

func (f *fakeTopUps) Quote(_ context.Context, amount decimal.Decimal) services.Quote {
	return services.Quote{AmountRub: amount, AmountUSDT: amount.DivRound(f.rate, 2), Rate: f.rate}
}

func (f *fakeTopUps) Create(_ context.Context, _ int64, q services.Quote) (services.Invoice, error) {
	if f.fail {
		return services.Invoice{}, services.ErrGatewayUnavailable
	}
	f.invoices = append(f.invoices, q)
	id := fmt.Sprintf("%d", len(f.invoices))
	return services.Invoice{ID: id, PayURL: "https://t.me/CryptoBot?start=" + id,
		AmountRub: q.AmountRub, AmountUSDT: q.AmountUSDT, Rate: q.Rate}, nil
}

type fakeAccounts struct {
	touched int
	profile services.Profile
}

func (f *fakeAccounts) Touch(_ context.Context, id int64, _ db.UserInfo) (db.User, bool, error) {
	f.touched++
	return db.User{ID: id}, f.touched == 1, nil
}

func (f *fakeAccounts) Profile(context.Context, int64) (services.Profile, error) {
	return f.profile, nil
}

type fakePayments struct {
	payments map[string]db.Payment
	err      error
}

func (f *fakePayments) CheckPayment(_ context.Context, userID int64, id string) (db.Payment, error) {
	if f.err != nil {
		return db.Payment{}, f.err
	}
	p, ok := f.payments[id]
	if !ok || p.UserID != userID {
		return db.Payment{}, db.ErrNotFound
	}
	return p, nil
}

type harness struct {
	t        *testing.T
	engine   *Engine
	store    *Store
	checkout *fakeCheckout
	topups   *fakeTopUps
	accounts *fakeAccounts
	payments *fakePayments
	now      time.Time
	last     []Response
}

func newHarness(t *testing.T, balance string) *harness {
	h := &harness{
		t:        t,
		store:    NewStore(time.Hour),
		checkout: &fakeCheckout{balance: decimal.RequireFromString(balance)},
		topups:   &fakeTopUps{rate: decimal.NewFromInt(80)},
		accounts: &fakeAccounts{},
		payments: &fakePayments{payments: map[string]db.Payment{}},
		now:      time.Date(2026, time.October, 14, 12, 0, 0, 0, msk),
	}
	h.engine = NewEngine(Deps{
		Catalog:  pricing.DefaultCatalog(),
		Checkout: h.checkout,
		TopUps:   h.topups,
		Accounts: h.accounts,
		Payments: h.payments,
		Sessions: h.store,
		Location: msk,
		MinTopUp: decimal.NewFromInt(100),
	})
	h.engine.now = func() time.Time { return h.now }
	return h
}

func (h *harness) press(cmd Command) []Response {
	h.t.Helper()
	return h.send(Update{UserID: testUser, ChatID: testUser, MessageID: 7, Kind: KindButton, Command: cmd})
}

func (h *harness) text(s string) []Response {
	h.t.Helper()
	return h.send(Update{UserID: testUser, ChatID: testUser, Kind: KindText, Command: DecodeText(s)})
}

func (h *harness) send(upd Update) []Response {
	h.t.Helper()
	out, err := h.engine.Handle(context.Background(), upd)
	require.NoError(h.t, err)
	h.last = out
	return out
}

// session возвращает текущую сессию пользователя без захвата
func (h *harness) session() *Session {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.sessions[testUser]
}

func (h *harness) step() Step {
	if s := h.session(); s != nil {
		return s.Step
	}
	return StepIdle
}

func (h *harness) lastText() string {
	require.NotEmpty(h.t, h.last)
	return h.last[len(h.last)-1].Text
}

func hasButton(out []Response, cmd Command) bool {
	for _, r := range out {
		for _, row := range r.Inline {
			for _, b := range row {
				if b.Command == cmd {
					return true
				}
			}
		}
	}
	return false
}

var streamDay = Date{2026, time.October, 20}

// toReview проходит все шаги заказа twitch / chat_ru / 2 часа
func (h *harness) toReview() {
	h.t.Helper()
	h.text(ButtonNewOrder)
	require.Equal(h.t, StepChoosePlatform, h.step())
	h.press(SelectPlatform{Platform: pricing.Twitch})
	require.Equal(h.t, StepChooseService, h.step())
	h.press(SelectService{Service: pricing.ChatRU})
	require.Equal(h.t, StepEnterChannel, h.step())
	h.text("my_channel")
	require.Equal(h.t, StepPickDate, h.step())
	h.press(PickDay{Date: streamDay})
	require.Equal(h.t, StepPickTime, h.step())
	h.text("18:00")
	require.Equal(h.t, StepPickDuration, h.step())
	h.press(QuickDuration{Minutes: 120})
	require.Equal(h.t, StepReview, h.step())
}

func TestOrderPlacedFromBalance(t *testing.T) {
	h := newHarness(t, "500")
	h.toReview()

	d := h.session().Draft
	assert.Equal(t, "200.00", d.Amount.StringFixed(2))
	assert.True(t, d.Rate.Equal(decimal.NewFromInt(100)))

	out := h.press(Confirm{})
	require.Len(t, h.checkout.orders, 1)
	order := h.checkout.orders[0]
	assert.Equal(t, testUser, order.UserID)
	assert.Equal(t, pricing.Twitch, order.Platform)
	assert.Equal(t, pricing.ChatRU, order.Service)
	assert.Equal(t, "my_channel", order.Channel)
	assert.Equal(t, "2026-10-20", order.StreamDate)
	assert.Equal(t, "18:00", order.StartTime)
	assert.Equal(t, 120, order.DurationMin)
	assert.Equal(t, "200.00", order.Amount.StringFixed(2))
	assert.Equal(t, "300.00", h.checkout.balance.StringFixed(2))

	assert.Nil(t, h.session(), "session dropped after the order")
	require.Len(t, out, 1)
	assert.True(t, out[0].MainMenu)
	assert.Contains(t, out[0].Text, "300.00")
}

func TestInsufficientFundsKeepsDraft(t *testing.T) {
	h := newHarness(t, "150")
	h.toReview()

	out := h.press(Confirm{})
	assert.Empty(t, h.checkout.orders)
	assert.Equal(t, "150.00", h.checkout.balance.StringFixed(2))
	assert.Equal(t, StepReview, h.step())
	assert.True(t, hasButton(out, TopUpForOrder{}))
	assert.Contains(t, h.lastText(), "50.00")

	// баланс пополнили извне, подтверждаем тот же черновик
	h.checkout.balance = decimal.NewFromInt(500)
	h.press(Confirm{})
	require.Len(t, h.checkout.orders, 1)
	assert.Equal(t, "300.00", h.checkout.balance.StringFixed(2))
}

func TestTopUpFromReviewResumesOrder(t *testing.T) {
	h := newHarness(t, "0")
	h.toReview()
	h.press(Confirm{})

	h.press(TopUpForOrder{})
	assert.Equal(t, StepTopUpAmount, h.step())
	assert.True(t, h.session().ResumeOrder)

	h.press(QuickAmount{Amount: decimal.NewFromInt(500)})
	assert.Equal(t, StepTopUpConfirm, h.step())
	assert.Contains(t, h.lastText(), "6.25 USDT")

	out := h.press(PayCrypto{})
	require.Len(t, h.topups.invoices, 1)
	assert.Equal(t, StepReview, h.step())
	assert.Equal(t, "200.00", h.session().Draft.Amount.StringFixed(2))
	assert.True(t, hasButton(out, CheckPayment{InvoiceID: "1"}))
	assert.True(t, hasButton(out, Confirm{}))
	assert.Equal(t, "https://t.me/CryptoBot?start=1", out[0].Inline[0][0].URL)
}

func TestBackFromTopUpReturnsToReview(t *testing.T) {
	h := newHarness(t, "0")
	h.toReview()
	h.press(TopUpForOrder{})
	h.press(Back{To: StepReview})
	assert.Equal(t, StepReview, h.step())
	assert.False(t, h.session().ResumeOrder)
	assert.Equal(t, "my_channel", h.session().Draft.Channel)
}

func TestPastDayNotSelectable(t *testing.T) {
	h := newHarness(t, "500")
	h.text(ButtonNewOrder)
	h.press(SelectPlatform{Platform: pricing.Kick})
	h.press(SelectService{Service: pricing.Viewers})
	h.text("chan")

	h.press(PickDay{Date: Date{2026, time.October, 13}})
	assert.Equal(t, StepPickDate, h.step())
	assert.True(t, h.session().Draft.Date.IsZero())

	h.press(PickDay{Date: Date{2026, time.October, 14}})
	assert.Equal(t, StepPickTime, h.step())
}

func TestPastTimeTodayRejected(t *testing.T) {
	h := newHarness(t, "500")
	h.text(ButtonNewOrder)
	h.press(SelectPlatform{Platform: pricing.YouTube})
	h.press(SelectService{Service: pricing.Followers})
	h.text("chan")
	h.press(PickDay{Date: Date{2026, time.October, 14}})

	h.text("11:59")
	assert.Equal(t, StepPickTime, h.step())
	assert.Equal(t, TimeOfDay{}, h.session().Draft.Start)

	h.text("12:30")
	assert.Equal(t, StepPickDuration, h.step())
	assert.Equal(t, TimeOfDay{12, 30}, h.session().Draft.Start)
}

func TestConfirmRechecksStartTime(t *testing.T) {
	h := newHarness(t, "500")
	h.toReview()

	h.now = time.Date(2026, time.October, 20, 18, 1, 0, 0, msk)
	h.press(Confirm{})
	assert.Empty(t, h.checkout.orders)
	assert.Equal(t, StepPickTime, h.step())
	assert.Equal(t, "500.00", h.checkout.balance.StringFixed(2))
}

func TestMonthNavigation(t *testing.T) {
	h := newHarness(t, "500")
	h.text(ButtonNewOrder)
	h.press(SelectPlatform{Platform: pricing.Twitch})
	h.press(SelectService{Service: pricing.ChatRU})
	h.text("chan")
	assert.Equal(t, Month{2026, time.October}, h.session().Calendar)

	h.press(ShowMonth{Month: Month{2026, time.September}})
	assert.Equal(t, Month{2026, time.October}, h.session().Calendar, "past months are not shown")

	out := h.press(ShowMonth{Month: Month{2026, time.December}})
	assert.Equal(t, Month{2026, time.December}, h.session().Calendar)
	assert.Equal(t, 7, out[0].EditMessageID)
	assert.True(t, hasButton(out, ShowMonth{Month: Month{2027, time.January}}))
	assert.True(t, hasButton(out, ShowMonth{Month: Month{2026, time.November}}))
}

func TestValidationDoesNotMutateDraft(t *testing.T) {
	h := newHarness(t, "500")
	h.text(ButtonNewOrder)
	h.press(SelectPlatform{Platform: pricing.Twitch})
	h.press(SelectService{Service: pricing.ChatRU})

	h.text(strings.Repeat("x", 101))
	assert.Equal(t, StepEnterChannel, h.step())
	assert.Empty(t, h.session().Draft.Channel)

	h.text("chan")
	h.press(PickDay{Date: streamDay})
	h.text("25:00")
	assert.Equal(t, StepPickTime, h.step())
	assert.Equal(t, TimeOfDay{}, h.session().Draft.Start)

	h.text("10:00")
	before := h.session().Draft
	for _, bad := range []string{"0", "30", "abc", "0:45"} {
		h.text(bad)
		assert.Equal(t, StepPickDuration, h.step(), bad)
		assert.Equal(t, before, h.session().Draft, bad)
	}

	h.text("1:30")
	assert.Equal(t, StepReview, h.step())
	assert.Equal(t, "150.00", h.session().Draft.Amount.StringFixed(2))
}

func TestBackNavigationKeepsEarlierSteps(t *testing.T) {
	h := newHarness(t, "500")
	h.toReview()

	h.press(Back{To: StepPickDuration})
	assert.Equal(t, StepPickDuration, h.step())
	h.press(Back{To: StepPickTime})
	assert.Equal(t, StepPickTime, h.step())
	h.press(Back{To: StepPickDate})
	assert.Equal(t, StepPickDate, h.step())
	assert.Equal(t, streamDay.MonthOf(), h.session().Calendar)
	h.press(Back{To: StepEnterChannel})
	assert.Equal(t, StepEnterChannel, h.step())
	h.press(Back{To: StepChooseService})
	assert.Equal(t, StepChooseService, h.step())
	h.press(Back{To: StepChoosePlatform})
	assert.Equal(t, StepChoosePlatform, h.step())

	d := h.session().Draft
	assert.Equal(t, "my_channel", d.Channel)
	assert.Equal(t, streamDay, d.Date)

	// смена платформы сбрасывает услугу и ставку
	h.press(SelectPlatform{Platform: pricing.Kick})
	assert.Empty(t, h.session().Draft.Service)
	assert.True(t, h.session().Draft.Rate.IsZero())

	// та же платформа сохраняет выбор
	h.press(SelectService{Service: pricing.ChatRU})
	h.press(Back{To: StepChooseService})
	h.press(Back{To: StepChoosePlatform})
	h.press(SelectPlatform{Platform: pricing.Kick})
	assert.Equal(t, pricing.ChatRU, h.session().Draft.Service)
}

func TestBackToWrongStepIsIgnored(t *testing.T) {
	h := newHarness(t, "500")
	h.toReview()
	h.press(Back{To: StepChoosePlatform})
	assert.Equal(t, StepReview, h.step())
}

func TestCancelFromEveryStep(t *testing.T) {
	steps := []func(h *harness){
		func(h *harness) { h.text(ButtonNewOrder) },
		func(h *harness) { h.press(SelectPlatform{Platform: pricing.Twitch}) },
		func(h *harness) { h.press(SelectService{Service: pricing.ChatRU}) },
		func(h *harness) { h.text("chan") },
		func(h *harness) { h.press(PickDay{Date: streamDay}) },
		func(h *harness) { h.text("18:00") },
		func(h *harness) { h.press(QuickDuration{Minutes: 60}) },
	}
	for n := 1; n <= len(steps); n++ {
		for _, cancel := range []Command{Cancel{}, Start{}, Menu{}} {
			t.Run(fmt.Sprintf("%d-%T", n, cancel), func(t *testing.T) {
				h := newHarness(t, "500")
				for _, step := range steps[:n] {
					step(h)
				}
				require.NotNil(t, h.session())
				out := h.press(cancel)
				assert.Nil(t, h.session())
				assert.True(t, out[0].MainMenu)
				assert.Empty(t, h.checkout.orders)
				assert.Equal(t, "500.00", h.checkout.balance.StringFixed(2))
			})
		}
	}
}

func TestTopUpConversation(t *testing.T) {
	h := newHarness(t, "0")
	h.text(ButtonTopUp)
	assert.Equal(t, StepTopUpAmount, h.step())

	h.text("50")
	assert.Equal(t, StepTopUpAmount, h.step())
	assert.Contains(t, h.lastText(), "Минимальная")

	h.text("1000")
	assert.Equal(t, StepTopUpConfirm, h.step())
	assert.Contains(t, h.lastText(), "12.50 USDT")

	out := h.press(PayCrypto{})
	require.Len(t, h.topups.invoices, 1)
	assert.True(t, h.topups.invoices[0].AmountRub.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, h.session())
	assert.True(t, hasButton(out, CheckPayment{InvoiceID: "1"}))
}

func TestTopUpQuickAmountOnlyOffered(t *testing.T) {
	h := newHarness(t, "0")
	h.text(ButtonTopUp)

	for _, a := range []string{"100.555", "700", "5000000"} {
		h.press(QuickAmount{Amount: decimal.RequireFromString(a)})
		assert.Equal(t, StepTopUpAmount, h.step(), a)
		assert.True(t, h.session().TopUpAmount.IsZero(), a)
	}

	h.press(QuickAmount{Amount: decimal.NewFromInt(2000)})
	assert.Equal(t, StepTopUpConfirm, h.step())
	assert.True(t, h.session().TopUpAmount.Equal(decimal.NewFromInt(2000)))
}

func TestTopUpGatewayFailure(t *testing.T) {
	h := newHarness(t, "0")
	h.topups.fail = true
	h.text(ButtonTopUp)
	h.text("500")
	out := h.press(PayCrypto{})
	assert.Empty(t, h.topups.invoices)
	assert.Nil(t, h.session())
	assert.True(t, out[0].MainMenu)
	assert.Contains(t, out[0].Text, "Не удалось создать счёт")
}

func TestCheckPaymentMessages(t *testing.T) {
	h := newHarness(t, "0")
	h.payments.payments["1"] = db.Payment{InvoiceID: "1", UserID: testUser, Amount: decimal.NewFromInt(1000), Status: db.PaymentPaid}
	h.payments.payments["2"] = db.Payment{InvoiceID: "2", UserID: testUser, Status: db.PaymentCreated}
	h.payments.payments["3"] = db.Payment{InvoiceID: "3", UserID: 7, Status: db.PaymentCreated}

	h.press(CheckPayment{InvoiceID: "1"})
	assert.Contains(t, h.lastText(), "1000.00")

	out := h.press(CheckPayment{InvoiceID: "2"})
	assert.Contains(t, h.lastText(), "ещё не поступила")
	assert.True(t, hasButton(out, CheckPayment{InvoiceID: "2"}))

	h.press(CheckPayment{InvoiceID: "3"})
	assert.Contains(t, h.lastText(), "не найден")

	h.payments.err = services.ErrGatewayUnavailable
	h.press(CheckPayment{InvoiceID: "2"})
	assert.Contains(t, h.lastText(), "недоступна")
}

func TestCheckPaymentKeepsOrderDraft(t *testing.T) {
	h := newHarness(t, "0")
	h.toReview()
	h.payments.payments["9"] = db.Payment{InvoiceID: "9", UserID: testUser, Amount: decimal.NewFromInt(500), Status: db.PaymentPaid}

	out := h.press(CheckPayment{InvoiceID: "9"})
	assert.Equal(t, StepReview, h.step())
	assert.True(t, hasButton(out, Confirm{}))
}

func TestPlatformNameStartsOrder(t *testing.T) {
	h := newHarness(t, "0")
	h.text("YouTube")
	assert.Equal(t, StepChooseService, h.step())
	assert.Equal(t, pricing.YouTube, h.session().Draft.Platform)

	h.text("Сделать заказ")
	h.text("vk")
	assert.Equal(t, StepChoosePlatform, h.step())
}

func TestProfile(t *testing.T) {
	h := newHarness(t, "0")
	h.accounts.profile = services.Profile{
		User:        db.User{ID: testUser, Username: "user", Balance: decimal.RequireFromString("350.5")},
		OrdersCount: 2,
		TotalSpent:  decimal.NewFromInt(400),
		Recent: []db.Order{{Platform: pricing.Twitch, Service: pricing.Viewers, Amount: decimal.NewFromInt(160),
			Status: db.OrderCompleted}},
	}
	out := h.text(ButtonProfile)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "350.50 ₽")
	assert.Contains(t, out[0].Text, "Заказов: 2")
	assert.Contains(t, out[0].Text, "✅ Twitch")
	assert.Equal(t, 1, h.accounts.touched)
}

func TestUnknownUserIsFatal(t *testing.T) {
	h := newHarness(t, "500")
	h.toReview()
	h.checkout.err = fmt.Errorf("debit: %w", ledger.ErrUnknownUser)

	_, err := h.engine.Handle(context.Background(), Update{UserID: testUser, ChatID: testUser, Kind: KindButton, Command: Confirm{}})
	require.True(t, errors.Is(err, ledger.ErrUnknownUser))

	h.engine.Abort(testUser)
	assert.Nil(t, h.session())
}

func TestStoreFailureKeepsReview(t *testing.T) {
	h := newHarness(t, "500")
	h.toReview()
	h.checkout.err = errors.New("connection reset")
	out := h.press(Confirm{})
	assert.Equal(t, StepReview, h.step())
	assert.True(t, hasButton(out, Confirm{}))
}
