package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Platform string

const (
	Twitch  Platform = "twitch"
	YouTube Platform = "youtube"
	Kick    Platform = "kick"
)

// Platforms в порядке показа пользователю
var Platforms = []Platform{Twitch, YouTube, Kick}

type Service string

const (
	ChatRU    Service = "chat_ru"
	ChatENG   Service = "chat_eng"
	Viewers   Service = "viewers"
	Followers Service = "followers"
)

// Services в порядке показа пользователю
var Services = []Service{ChatRU, ChatENG, Viewers, Followers}

// ParsePlatform принимает название платформы в любом регистре ("Twitch", "youtube").
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

func ParseService(s string) (Service, bool) {
	for _, known := range Services {
		if Service(s) == known {
			return known, true
		}
	}
	return "", false
}

// Title возвращает название платформы для сообщений
func (p Platform) Title() string {
	switch p {
	case Twitch:
		return "Twitch"
	case YouTube:
		return "YouTube"
	case Kick:
		return "Kick"
	}
	return string(p)
}

// Title возвращает название услуги для сообщений
func (s Service) Title() string {
	switch s {
	case ChatRU:
		return "Чат (RU)"
	case ChatENG:
		return "Чат (ENG)"
	case Viewers:
		return "Зрители"
	case Followers:
		return "Подписчики"
	}
	return string(s)
}

// Неизменяемая таблица цен в рублях за час.
// Цена копируется в черновик заказа при выборе услуги, поэтому
// замена каталога не влияет на уже начатые и созданные заказы.
type Catalog struct {
	rates map[Platform]map[Service]decimal.Decimal
}

// NewCatalog копирует переданную таблицу.
func NewCatalog(rates map[Platform]map[Service]int64) *Catalog {
	c := &Catalog{rates: make(map[Platform]map[Service]decimal.Decimal, len(rates))}
	for p, services := range rates {
		row := make(map[Service]decimal.Decimal, len(services))
		for s, rub := range services {
			row[s] = decimal.NewFromInt(rub)
		}
		c.rates[p] = row
	}
	return c
}

// Текущий прайс бота
func DefaultCatalog() *Catalog {
	return NewCatalog(map[Platform]map[Service]int64{
		Twitch:  {ChatRU: 100, ChatENG: 150, Viewers: 80, Followers: 50},
		YouTube: {ChatRU: 120, ChatENG: 170, Viewers: 90, Followers: 60},
		Kick:    {ChatRU: 90, ChatENG: 140, Viewers: 70, Followers: 40},
	})
}

// Price возвращает цену за час; ok=false, если услуга не продаётся на платформе.
func (c *Catalog) Price(p Platform, s Service) (decimal.Decimal, bool) {
	row, ok := c.rates[p]
	if !ok {
		return decimal.Zero, false
	}
	rate, ok := row[s]
	return rate, ok
}

// ServicesFor возвращает доступные на платформе услуги в порядке показа.
func (c *Catalog) ServicesFor(p Platform) []Service {
	var list []Service
	for _, s := range Services {
		if _, ok := c.Price(p, s); ok {
			list = append(list, s)
		}
	}
	return list
}
