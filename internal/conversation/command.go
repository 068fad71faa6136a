package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/db"
	"stream-boost-bot/internal/pricing"
)

// Command — закрытый набор действий пользователя. Строки callback data и тексты кнопок
// разбираются один раз на границе транспорта, дальше движок работает только с этими типами.
type Command interface {
	command()
}

type (
	Start         struct{}
	Menu          struct{}
	NewOrder      struct{}
	ShowProfile   struct{}
	Help          struct{}
	TopUp         struct{}
	Cancel        struct{}
	Noop          struct{}
	Confirm       struct{}
	TopUpForOrder struct{}
	PayCrypto     struct{}

	Text           struct{ Value string }
	SelectPlatform struct{ Platform pricing.Platform }
	SelectService  struct{ Service pricing.Service }
	Back           struct{ To Step }
	ShowMonth      struct{ Month Month }
	PickDay        struct{ Date Date }
	QuickDuration  struct{ Minutes int }
	QuickAmount    struct{ Amount decimal.Decimal }
	CheckPayment   struct{ InvoiceID string }
)

func (Start) command()          {}
func (Menu) command()           {}
func (NewOrder) command()       {}
func (ShowProfile) command()    {}
func (Help) command()           {}
func (TopUp) command()          {}
func (Cancel) command()         {}
func (Noop) command()           {}
func (Confirm) command()        {}
func (TopUpForOrder) command()  {}
func (PayCrypto) command()      {}
func (Text) command()           {}
func (SelectPlatform) command() {}
func (SelectService) command()  {}
func (Back) command()           {}
func (ShowMonth) command()      {}
func (PickDay) command()        {}
func (QuickDuration) command()  {}
func (QuickAmount) command()    {}
func (CheckPayment) command()   {}

// Тексты кнопок главного меню
const (
	ButtonNewOrder = "🛒 Сделать заказ"
	ButtonProfile  = "👤 Мой профиль"
	ButtonTopUp    = "💰 Пополнить баланс"
	ButtonHelp     = "ℹ️ Помощь"
	ButtonMenu     = "🔙 Назад в меню"
	ButtonCancel   = "❌ Отмена"
)

// DecodeText превращает текст сообщения в команду. Любой нераспознанный текст — Text.
func DecodeText(text string) Command {
	value := strings.TrimSpace(text)
	switch strings.ToLower(value) {
	case "/start":
		return Start{}
	case "/menu", strings.ToLower(ButtonMenu), "назад в меню":
		return Menu{}
	case "/order", strings.ToLower(ButtonNewOrder), "сделать заказ":
		return NewOrder{}
	case "/profile", strings.ToLower(ButtonProfile), "мой профиль":
		return ShowProfile{}
	case "/help", strings.ToLower(ButtonHelp), "помощь":
		return Help{}
	case "/topup", strings.ToLower(ButtonTopUp), "пополнить баланс":
		return TopUp{}
	case "/cancel", strings.ToLower(ButtonCancel), "отмена":
		return Cancel{}
	}
	return Text{Value: value}
}

// Encode возвращает callback data для inline-кнопки. Telegram ограничивает её 64 байтами.
func Encode(cmd Command) string {
	switch c := cmd.(type) {
	case Menu:
		return "menu"
	case Cancel:
		return "cancel"
	case Noop:
		return "noop"
	case Confirm:
		return "confirm"
	case TopUpForOrder:
		return "topup_order"
	case PayCrypto:
		return "pay"
	case SelectPlatform:
		return "plat:" + string(c.Platform)
	case SelectService:
		return "svc:" + string(c.Service)
	case Back:
		return "back:" + c.To.String()
	case ShowMonth:
		return "cal:" + c.Month.String()
	case PickDay:
		return "day:" + c.Date.String()
	case QuickDuration:
		return "dur:" + strconv.Itoa(c.Minutes)
	case QuickAmount:
		return "amt:" + c.Amount.String()
	case CheckPayment:
		return "check:" + c.InvoiceID
	}
	panic(fmt.Sprintf("command %T has no callback form", cmd))
}

// DecodeCallback разбирает callback data, созданную Encode
func DecodeCallback(data string) (Command, error) {
	switch data {
	case "menu":
		return Menu{}, nil
	case "cancel":
		return Cancel{}, nil
	case "noop":
		return Noop{}, nil
	case "confirm":
		return Confirm{}, nil
	case "topup_order":
		return TopUpForOrder{}, nil
	case "pay":
		return PayCrypto{}, nil
	}

	prefix, arg, ok := strings.Cut(data, ":")
	if !ok || arg == "" {
		return nil, fmt.Errorf("unknown callback %q", data)
	}
	switch prefix {
	case "plat":
		if p, ok := pricing.ParsePlatform(arg); ok {
			return SelectPlatform{Platform: p}, nil
		}
	case "svc":
		if s, ok := pricing.ParseService(arg); ok {
			return SelectService{Service: s}, nil
		}
	case "back":
		if step, ok := parseStep(arg); ok {
			return Back{To: step}, nil
		}
	case "cal":
		if m, err := ParseMonth(arg); err == nil {
			return ShowMonth{Month: m}, nil
		}
	case "day":
		if d, err := ParseDate(arg); err == nil {
			return PickDay{Date: d}, nil
		}
	case "dur":
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			return QuickDuration{Minutes: n}, nil
		}
	case "amt":
		if amount, err := decimal.NewFromString(arg); err == nil && amount.IsPositive() && amount.Equal(amount.Round(2)) {
			return QuickAmount{Amount: amount}, nil
		}
	case "check":
		return CheckPayment{InvoiceID: arg}, nil
	}
	return nil, fmt.Errorf("unknown callback %q", data)
}

// Kind — откуда пришёл ввод
type Kind int

const (
	KindText Kind = iota
	KindButton
)

// Update — входящее действие пользователя
type Update struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Kind      Kind
	Command   Command
	From      db.UserInfo
}

// Button — inline-кнопка: либо команда, либо внешняя ссылка
type Button struct {
	Text    string
	Command Command
	URL     string
}

// Response — исходящее сообщение. При EditMessageID != 0 редактируется существующее сообщение.
type Response struct {
	ChatID        int64
	Text          string
	EditMessageID int
	Inline        [][]Button
	// MainMenu — показать клавиатуру главного меню
	MainMenu bool
}
