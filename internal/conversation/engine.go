// Package conversation — пошаговый диалог оформления заказа и пополнения баланса.
//
// Движок не знает о Telegram: на вход он получает Update с уже разобранной командой,
// на выходе отдаёт Response. Побочные эффекты есть только у подтверждения заказа,
// выставления счёта и проверки оплаты; все остальные шаги меняют лишь черновик в сессии.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/ledger"
	"stream-boost-bot/internal/pricing"
	"stream-boost-bot/internal/services"
)

type Checkout interface {
	PlaceOrder(ctx context.Context, order db.Order) (db.Order, decimal.Decimal, error)
}

type TopUps interface {
	Quote(ctx context.Context, amountRub decimal.Decimal) services.Quote
	Create(ctx context.Context, userID int64, q services.Quote) (services.Invoice, error)
}

type Accounts interface {
	Touch(ctx context.Context, userID int64, info db.UserInfo) (db.User, bool, error)
	Profile(ctx context.Context, userID int64) (services.Profile, error)
}

type PaymentChecker interface {
	CheckPayment(ctx context.Context, userID int64, invoiceID string) (db.Payment, error)
}

type Deps struct {
	Catalog  *pricing.Catalog
	Checkout Checkout
	TopUps   TopUps
	Accounts Accounts
	Payments PaymentChecker
	Sessions *Store
	Location *time.Location
	MinTopUp decimal.Decimal
	Log      *zap.Logger
}

type Engine struct {
	catalog  *pricing.Catalog
	checkout Checkout
	topups   TopUps
	accounts Accounts
	payments PaymentChecker
	sessions *Store
	loc      *time.Location
	minTopUp decimal.Decimal
	log      *zap.Logger
	now      func() time.Time
}

func NewEngine(d Deps) *Engine {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		catalog:  d.Catalog,
		checkout: d.Checkout,
		topups:   d.TopUps,
		accounts: d.Accounts,
		payments: d.Payments,
		sessions: d.Sessions,
		loc:      loc,
		minTopUp: d.MinTopUp,
		log:      log,
		now:      time.Now,
	}
}

// turn — контекст обработки одного Update
type turn struct {
	upd Update
	s   *Session
	out []Response
}

// say отправляет новое сообщение
func (t *turn) say(text string, inline [][]Button) {
	t.out = append(t.out, Response{ChatID: t.upd.ChatID, Text: text, Inline: inline})
}

// show редактирует сообщение с нажатой кнопкой, а на текстовый ввод отвечает новым сообщением
func (t *turn) show(text string, inline [][]Button) {
	r := Response{ChatID: t.upd.ChatID, Text: text, Inline: inline}
	if t.upd.Kind == KindButton && t.upd.MessageID != 0 {
		r.EditMessageID = t.upd.MessageID
	}
	t.out = append(t.out, r)
}

func (t *turn) menu(text string) {
	t.out = append(t.out, Response{ChatID: t.upd.ChatID, Text: text, MainMenu: true})
}

// Handle обрабатывает одно действие пользователя. Ошибка означает сбой, после которого
// сессию нужно прервать (Abort); ошибки ввода и нехватка средств ошибкой не считаются.
func (e *Engine) Handle(ctx context.Context, upd Update) ([]Response, error) {
	if upd.Command == nil {
		return nil, nil
	}
	if _, _, err := e.accounts.Touch(ctx, upd.UserID, upd.From); err != nil {
		return nil, fmt.Errorf("touch user %d: %w", upd.UserID, err)
	}
	s, release, err := e.sessions.Acquire(ctx, upd.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	t := &turn{upd: upd, s: s}
	if err := e.dispatch(ctx, t); err != nil {
		return nil, err
	}
	return t.out, nil
}

// Abort отбрасывает сессию пользователя после сбоя
func (e *Engine) Abort(userID int64) {
	e.sessions.Discard(userID)
}

func (e *Engine) today() Date {
	return DateOf(e.now().In(e.loc))
}

func (e *Engine) dispatch(ctx context.Context, t *turn) error {
	s := t.s
	switch cmd := t.upd.Command.(type) {
	case Start:
		s.Reset()
		t.menu(welcomeText(t.upd.From.FirstName))
		return nil
	case Menu:
		s.Reset()
		t.menu("Главное меню:")
		return nil
	case Cancel:
		s.Reset()
		t.menu("Действие отменено.")
		return nil
	case Help:
		s.Reset()
		t.menu(helpText)
		return nil
	case ShowProfile:
		s.Reset()
		return e.profile(ctx, t)
	case NewOrder:
		s.Reset()
		s.Step = StepChoosePlatform
		t.say("Выберите платформу:", platformKeyboard())
		return nil
	case TopUp:
		s.Reset()
		s.Step = StepTopUpAmount
		t.say(topUpPrompt(e.minTopUp, decimal.Zero), amountKeyboard(false))
		return nil
	case CheckPayment:
		return e.checkPayment(ctx, t, cmd.InvoiceID)
	case Noop:
		return nil
	}

	switch s.Step {
	case StepIdle:
		return e.onIdle(t)
	case StepChoosePlatform:
		return e.onPlatform(t)
	case StepChooseService:
		return e.onService(t)
	case StepEnterChannel:
		return e.onChannel(t)
	case StepPickDate:
		return e.onDate(t)
	case StepPickTime:
		return e.onTime(t)
	case StepPickDuration:
		return e.onDuration(t)
	case StepReview:
		return e.onReview(ctx, t)
	case StepTopUpAmount:
		return e.onTopUpAmount(ctx, t)
	case StepTopUpConfirm:
		return e.onTopUpConfirm(ctx, t)
	}
	return fmt.Errorf("session %d in unknown step %d", s.UserID, s.Step)
}

func (e *Engine) onIdle(t *turn) error {
	// название платформы в главном меню сразу начинает заказ
	if text, ok := t.upd.Command.(Text); ok {
		if p, ok := pricing.ParsePlatform(text.Value); ok {
			t.s.Step = StepChoosePlatform
			return e.choosePlatform(t, p)
		}
	}
	t.menu("Пожалуйста, используйте кнопки меню.")
	return nil
}

func (e *Engine) onPlatform(t *turn) error {
	switch cmd := t.upd.Command.(type) {
	case SelectPlatform:
		return e.choosePlatform(t, cmd.Platform)
	case Text:
		if p, ok := pricing.ParsePlatform(cmd.Value); ok {
			return e.choosePlatform(t, p)
		}
	}
	t.say("Выберите платформу из списка:", platformKeyboard())
	return nil
}

func (e *Engine) choosePlatform(t *turn, p pricing.Platform) error {
	d := &t.s.Draft
	if d.Platform != p {
		d.Service = ""
		d.Rate = decimal.Zero
	}
	d.Platform = p
	t.s.Step = StepChooseService
	t.show(fmt.Sprintf("Платформа: <b>%s</b>\nВыберите услугу:", p.Title()), serviceKeyboard(e.catalog, p))
	return nil
}

func (e *Engine) onService(t *turn) error {
	d := &t.s.Draft
	var service pricing.Service
	switch cmd := t.upd.Command.(type) {
	case SelectService:
		service = cmd.Service
	case Back:
		if cmd.To == StepChoosePlatform {
			t.s.Step = StepChoosePlatform
			t.show("Выберите платформу:", platformKeyboard())
			return nil
		}
	case Text:
		if s, ok := pricing.ParseService(cmd.Value); ok {
			service = s
		}
	}
	rate, ok := e.catalog.Price(d.Platform, service)
	if !ok {
		t.say("Выберите услугу из списка:", serviceKeyboard(e.catalog, d.Platform))
		return nil
	}
	// ставка фиксируется в черновике и дальше не перечитывается из каталога
	d.Service = service
	d.Rate = rate
	t.s.Step = StepEnterChannel
	t.show(fmt.Sprintf("Услуга: <b>%s</b> (%s ₽/час)\n\nВведите название канала:",
		service.Title(), rate.StringFixed(0)), [][]Button{navRow(StepChooseService)})
	return nil
}

func (e *Engine) onChannel(t *turn) error {
	switch cmd := t.upd.Command.(type) {
	case Back:
		if cmd.To == StepChooseService {
			t.s.Step = StepChooseService
			t.show("Выберите услугу:", serviceKeyboard(e.catalog, t.s.Draft.Platform))
			return nil
		}
	case Text:
		channel, verr := ValidateChannel(cmd.Value)
		if verr != nil {
			t.say(verr.Reason+"\nВведите название канала:", [][]Button{navRow(StepChooseService)})
			return nil
		}
		t.s.Draft.Channel = channel
		return e.enterDate(t, false)
	}
	t.say("Введите название канала текстом:", [][]Button{navRow(StepChooseService)})
	return nil
}

func (e *Engine) enterDate(t *turn, edit bool) error {
	today := e.today()
	if t.s.Calendar.Before(today.MonthOf()) {
		t.s.Calendar = today.MonthOf()
	}
	t.s.Step = StepPickDate
	text := "📅 Выберите дату стрима:"
	if edit {
		t.show(text, calendarKeyboard(t.s.Calendar, today))
	} else {
		t.say(text, calendarKeyboard(t.s.Calendar, today))
	}
	return nil
}

func (e *Engine) onDate(t *turn) error {
	today := e.today()
	switch cmd := t.upd.Command.(type) {
	case ShowMonth:
		if !cmd.Month.Before(today.MonthOf()) {
			t.s.Calendar = cmd.Month
		}
		t.show("📅 Выберите дату стрима:", calendarKeyboard(t.s.Calendar, today))
		return nil
	case PickDay:
		if cmd.Date.Before(today) {
			t.show("Нельзя выбрать прошедшую дату. Выберите другую:", calendarKeyboard(t.s.Calendar, today))
			return nil
		}
		t.s.Draft.Date = cmd.Date
		t.s.Step = StepPickTime
		t.show(fmt.Sprintf("Дата: <b>%s</b>\n\n⏰ Введите время начала стрима (ЧЧ:ММ):", cmd.Date.Human()),
			[][]Button{navRow(StepPickDate)})
		return nil
	case Back:
		if cmd.To == StepEnterChannel {
			t.s.Step = StepEnterChannel
			t.show("Введите название канала:", [][]Button{navRow(StepChooseService)})
			return nil
		}
	}
	t.say("Выберите дату в календаре:", calendarKeyboard(t.s.Calendar, today))
	return nil
}

func (e *Engine) onTime(t *turn) error {
	switch cmd := t.upd.Command.(type) {
	case Back:
		if cmd.To == StepPickDate {
			return e.enterDate(t, true)
		}
	case Text:
		start, verr := ParseTimeOfDay(cmd.Value)
		if verr != nil {
			t.say(verr.Reason, [][]Button{navRow(StepPickDate)})
			return nil
		}
		if t.s.Draft.Date.At(start, e.loc).Before(e.now()) {
			t.say("Это время уже прошло. Введите время позже текущего:", [][]Button{navRow(StepPickDate)})
			return nil
		}
		t.s.Draft.Start = start
		t.s.Step = StepPickDuration
		t.say(fmt.Sprintf("Время начала: <b>%s</b>\n\n⏱ Выберите длительность или введите количество часов (например 2 или 1:30):",
			start), durationKeyboard())
		return nil
	}
	t.say("Введите время начала стрима (ЧЧ:ММ):", [][]Button{navRow(StepPickDate)})
	return nil
}

func (e *Engine) onDuration(t *turn) error {
	minutes := 0
	switch cmd := t.upd.Command.(type) {
	case Back:
		if cmd.To == StepPickTime {
			t.s.Step = StepPickTime
			t.show("⏰ Введите время начала стрима (ЧЧ:ММ):", [][]Button{navRow(StepPickDate)})
			return nil
		}
	case QuickDuration:
		minutes = cmd.Minutes
	case Text:
		m, verr := ParseDuration(cmd.Value)
		if verr != nil {
			t.say(verr.Reason, durationKeyboard())
			return nil
		}
		minutes = m
	}
	if minutes < MinDurationMin || minutes > MaxDurationMin {
		t.say("Выберите длительность:", durationKeyboard())
		return nil
	}
	d := &t.s.Draft
	d.DurationMin = minutes
	d.Amount = Amount(d.Rate, minutes)
	t.s.Step = StepReview
	t.show(reviewText(*d), reviewKeyboard())
	return nil
}

func (e *Engine) onReview(ctx context.Context, t *turn) error {
	switch cmd := t.upd.Command.(type) {
	case Confirm:
		return e.confirm(ctx, t)
	case TopUpForOrder:
		t.s.ResumeOrder = true
		t.s.Step = StepTopUpAmount
		t.say(topUpPrompt(e.minTopUp, t.s.Draft.Amount), amountKeyboard(true))
		return nil
	case Back:
		if cmd.To == StepPickDuration {
			t.s.Step = StepPickDuration
			t.show("⏱ Выберите длительность:", durationKeyboard())
			return nil
		}
	}
	t.say(reviewText(t.s.Draft), reviewKeyboard())
	return nil
}

func (e *Engine) confirm(ctx context.Context, t *turn) error {
	d := t.s.Draft
	if d.Date.At(d.Start, e.loc).Before(e.now()) {
		t.s.Step = StepPickTime
		t.say("Время начала уже прошло. Введите новое время (ЧЧ:ММ):", [][]Button{navRow(StepPickDate)})
		return nil
	}

	order, balance, err := e.checkout.PlaceOrder(ctx, db.Order{
		UserID:      t.s.UserID,
		Platform:    d.Platform,
		Service:     d.Service,
		Channel:     d.Channel,
		StreamDate:  d.Date.String(),
		StartTime:   d.Start.String(),
		DurationMin: d.DurationMin,
		Amount:      d.Amount,
	})
	var insufficient *ledger.InsufficientFundsError
	switch {
	case err == nil:
		e.log.Info("order placed", zap.String("order_id", order.ID), zap.Int64("user_id", t.s.UserID),
			zap.String("amount", order.Amount.StringFixed(2)))
		t.s.Reset()
		t.menu(fmt.Sprintf("✅ Заказ <code>%s</code> оформлен!\nСписано: %s ₽\nБаланс: %s ₽\n\nМы свяжемся с вами перед началом стрима.",
			order.ID, order.Amount.StringFixed(2), balance.StringFixed(2)))
		return nil
	case errors.As(err, &insufficient):
		t.say(fmt.Sprintf("❌ Недостаточно средств.\nВаш баланс: %s ₽\nСтоимость заказа: %s ₽\nНе хватает: %s ₽\n\nПополните баланс и подтвердите заказ снова.",
			insufficient.Balance.StringFixed(2), insufficient.Required.StringFixed(2), insufficient.Shortfall().StringFixed(2)),
			insufficientKeyboard())
		return nil
	case errors.Is(err, ledger.ErrUnknownUser):
		return err
	default:
		e.log.Error("place order failed", zap.Int64("user_id", t.s.UserID), zap.Error(err))
		t.say("⚠️ Не удалось оформить заказ. Деньги не списаны, попробуйте подтвердить ещё раз.", reviewKeyboard())
		return nil
	}
}

func (e *Engine) onTopUpAmount(ctx context.Context, t *turn) error {
	var amount decimal.Decimal
	switch cmd := t.upd.Command.(type) {
	case Back:
		if cmd.To == StepReview && t.s.ResumeOrder {
			t.s.ResumeOrder = false
			t.s.Step = StepReview
			t.show(reviewText(t.s.Draft), reviewKeyboard())
			return nil
		}
	case QuickAmount:
		if isQuickAmount(cmd.Amount) && cmd.Amount.GreaterThanOrEqual(e.minTopUp) {
			amount = cmd.Amount
		}
	case Text:
		a, verr := ParseTopUpAmount(cmd.Value, e.minTopUp)
		if verr != nil {
			t.say(verr.Reason, amountKeyboard(t.s.ResumeOrder))
			return nil
		}
		amount = a
	}
	if !amount.IsPositive() {
		t.say(topUpPrompt(e.minTopUp, decimal.Zero), amountKeyboard(t.s.ResumeOrder))
		return nil
	}
	return e.quoteTopUp(ctx, t, amount)
}

func (e *Engine) quoteTopUp(ctx context.Context, t *turn, amount decimal.Decimal) error {
	q := e.topups.Quote(ctx, amount)
	t.s.TopUpAmount = amount
	t.s.Step = StepTopUpConfirm
	t.show(fmt.Sprintf("Сумма пополнения: <b>%s ₽</b>\nК оплате: <b>%s USDT</b> (курс %s ₽)\n\nПодтвердите создание счёта:",
		q.AmountRub.StringFixed(2), q.AmountUSDT.StringFixed(2), q.Rate.StringFixed(2)), topUpConfirmKeyboard())
	return nil
}

func (e *Engine) onTopUpConfirm(ctx context.Context, t *turn) error {
	switch cmd := t.upd.Command.(type) {
	case Back:
		if cmd.To == StepTopUpAmount {
			t.s.Step = StepTopUpAmount
			t.show(topUpPrompt(e.minTopUp, t.s.Draft.Amount), amountKeyboard(t.s.ResumeOrder))
			return nil
		}
	case PayCrypto:
		return e.createInvoice(ctx, t)
	}
	t.say("Подтвердите создание счёта:", topUpConfirmKeyboard())
	return nil
}

func (e *Engine) createInvoice(ctx context.Context, t *turn) error {
	s := t.s
	// курс мог измениться, пока пользователь думал
	q := e.topups.Quote(ctx, s.TopUpAmount)
	inv, err := e.topups.Create(ctx, s.UserID, q)
	if err != nil {
		e.log.Warn("invoice not created", zap.Int64("user_id", s.UserID), zap.Error(err))
		text := "⚠️ Не удалось создать счёт на оплату. Попробуйте позже."
		if s.ResumeOrder {
			s.ResumeOrder = false
			s.Step = StepReview
			t.say(text, reviewKeyboard())
			return nil
		}
		s.Reset()
		t.menu(text)
		return nil
	}

	resume := s.ResumeOrder
	text := fmt.Sprintf("Счёт на <b>%s USDT</b> (%s ₽) создан.\nПосле оплаты нажмите «Проверить оплату».",
		inv.AmountUSDT.StringFixed(2), inv.AmountRub.StringFixed(2))
	if resume {
		s.ResumeOrder = false
		s.TopUpAmount = decimal.Zero
		s.Step = StepReview
		text += "\nЗатем подтвердите заказ."
	} else {
		s.Reset()
	}
	t.show(text, invoiceKeyboard(inv.PayURL, inv.ID, resume))
	return nil
}

func (e *Engine) checkPayment(ctx context.Context, t *turn, invoiceID string) error {
	p, err := e.payments.CheckPayment(ctx, t.s.UserID, invoiceID)
	var keyboard [][]Button
	if t.s.Step == StepReview {
		keyboard = [][]Button{{cmdButton("✅ Подтвердить заказ", Confirm{})}, cancelRow()}
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		t.say("Счёт не найден.", keyboard)
		return nil
	case errors.Is(err, services.ErrGatewayUnavailable):
		t.say("⚠️ Платёжная система сейчас недоступна. Проверьте оплату чуть позже.", keyboard)
		return nil
	case err != nil:
		e.log.Error("payment check failed", zap.String("invoice_id", invoiceID), zap.Error(err))
		t.say("⚠️ Не удалось проверить оплату. Попробуйте позже.", keyboard)
		return nil
	}

	switch p.Status {
	case db.PaymentPaid:
		t.say(fmt.Sprintf("✅ Оплата получена! Баланс пополнен на %s ₽.", p.Amount.StringFixed(2)), keyboard)
	case db.PaymentExpired:
		t.say("⌛ Срок действия счёта истёк. Создайте новый.", keyboard)
	default:
		if keyboard == nil {
			keyboard = [][]Button{{cmdButton("🔄 Проверить ещё раз", CheckPayment{InvoiceID: invoiceID})}}
		} else {
			keyboard = append([][]Button{{cmdButton("🔄 Проверить ещё раз", CheckPayment{InvoiceID: invoiceID})}}, keyboard...)
		}
		t.say("Оплата ещё не поступила.", keyboard)
	}
	return nil
}

func (e *Engine) profile(ctx context.Context, t *turn) error {
	p, err := e.accounts.Profile(ctx, t.s.UserID)
	if err != nil {
		return fmt.Errorf("profile %d: %w", t.s.UserID, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👤 <b>Профиль</b>\n\nID: <code>%d</code>\n", p.User.ID)
	if p.User.Username != "" {
		fmt.Fprintf(&b, "Username: @%s\n", html.EscapeString(p.User.Username))
	}
	fmt.Fprintf(&b, "Баланс: <b>%s ₽</b>\nЗаказов: %d\nПотрачено: %s ₽\n",
		p.User.Balance.StringFixed(2), p.OrdersCount, p.TotalSpent.StringFixed(2))
	if len(p.Recent) > 0 {
		b.WriteString("\nПоследние заказы:\n")
		for _, o := range p.Recent {
			fmt.Fprintf(&b, "%s %s, %s — %s ₽\n", statusIcon(o.Status), o.Platform.Title(), o.Service.Title(),
				o.Amount.StringFixed(2))
		}
	}
	t.menu(b.String())
	return nil
}
