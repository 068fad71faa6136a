package conversation

import (
	"fmt"
	"html"

	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/db"
)

const helpText = `ℹ️ <b>Помощь</b>

Мы продвигаем стримы на Twitch, YouTube и Kick: активность в чате на русском и английском, зрители, фолловеры.

<b>Как сделать заказ:</b>
1. Нажмите «Сделать заказ» и выберите платформу
2. Выберите услугу и укажите канал
3. Выберите дату, время начала и длительность
4. Подтвердите заказ, оплата спишется с баланса

Баланс пополняется в USDT через CryptoBot. Зачисление происходит автоматически после оплаты.`

func welcomeText(firstName string) string {
	name := html.EscapeString(firstName)
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf("👋 Привет, %s!\n\nЗдесь можно заказать продвижение стрима. Выберите действие в меню.", name)
}

func topUpPrompt(min, orderAmount decimal.Decimal) string {
	text := fmt.Sprintf("💰 Введите сумму пополнения в рублях (минимум %s ₽) или выберите из списка:", min.StringFixed(0))
	if orderAmount.IsPositive() {
		text = fmt.Sprintf("Стоимость заказа: %s ₽\n\n", orderAmount.StringFixed(2)) + text
	}
	return text
}

func reviewText(d Draft) string {
	return fmt.Sprintf(`📋 <b>Проверьте заказ</b>

Платформа: %s
Услуга: %s
Канал: %s
Дата: %s
Время начала: %s
Длительность: %s
Стоимость: <b>%s ₽</b>`,
		d.Platform.Title(), d.Service.Title(), html.EscapeString(d.Channel), d.Date.Human(), d.Start,
		FormatDuration(d.DurationMin), d.Amount.StringFixed(2))
}

func statusIcon(status db.OrderStatus) string {
	switch status {
	case db.OrderCompleted:
		return "✅"
	case db.OrderCancelled:
		return "❌"
	default:
		return "⏳"
	}
}
