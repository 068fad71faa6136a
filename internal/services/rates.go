package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stream-boost-bot/internal/db"
)

// DefaultUSDTRate используется, пока курс ни разу не был получен
var DefaultUSDTRate = decimal.NewFromInt(80)

// Курс USDT/RUB с Binance с сохранением последнего известного значения в settings
type Rates struct {
	client   *resty.Client
	apiURL   string
	settings *db.Settings
	log      *zap.Logger

	mu   sync.RWMutex
	rate decimal.Decimal
}

func NewRates(apiURL string, timeout time.Duration, settings *db.Settings, log *zap.Logger) *Rates {
	return &Rates{
		client:   resty.New().SetTimeout(timeout),
		apiURL:   apiURL,
		settings: settings,
		log:      log,
	}
}

// Refresh запрашивает курс и сохраняет его. При ошибке прежний курс остаётся в силе.
func (r *Rates) Refresh(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	resp, err := r.client.R().SetContext(ctx).
		SetQueryParam("symbol", "USDTRUB").
		SetResult(&out).
		Get(r.apiURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fetch rate: %v", ErrGatewayUnavailable, err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("%w: fetch rate: http %d", ErrGatewayUnavailable, resp.StatusCode())
	}
	rate, err := decimal.NewFromString(out.Price)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("bad rate %q", out.Price)
	}
	rate = rate.Round(2)

	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()

	if err := r.settings.Set(ctx, db.SettingUSDTRate, rate.String()); err != nil {
		r.log.Warn("rate not persisted", zap.Error(err))
	}
	r.log.Info("usdt rate updated", zap.String("rate", rate.String()))
	return rate, nil
}

// Последний известный курс: из памяти, затем из settings, затем DefaultUSDTRate.
func (r *Rates) Current(ctx context.Context) decimal.Decimal {
	r.mu.RLock()
	rate := r.rate
	r.mu.RUnlock()
	if rate.IsPositive() {
		return rate
	}

	value, ok, err := r.settings.Get(ctx, db.SettingUSDTRate)
	if err != nil {
		r.log.Warn("stored rate unavailable", zap.Error(err))
	}
	if ok {
		if stored, err := decimal.NewFromString(value); err == nil && stored.IsPositive() {
			r.mu.Lock()
			r.rate = stored
			r.mu.Unlock()
			return stored
		}
	}
	return DefaultUSDTRate
}

// Quote обновляет курс перед выставлением счёта и откатывается к последнему известному при ошибке
func (r *Rates) Quote(ctx context.Context) decimal.Decimal {
	rate, err := r.Refresh(ctx)
	if err != nil {
		r.log.Warn("rate refresh failed, using last known", zap.Error(err))
		return r.Current(ctx)
	}
	return rate
}
