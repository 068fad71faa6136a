package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"stream-boost-bot/internal/db"
)

const usdtAsset = "USDT"

// Клиент Crypto Pay API (https://help.crypt.bot/crypto-pay-api)
type CryptoBot struct {
	client    *resty.Client
	returnURL string
}

type cryptoResponse[T any] struct {
	OK     bool `json:"ok"`
	Result T    `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

type cryptoInvoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	PayURL        string `json:"pay_url"`
	BotInvoiceURL string `json:"bot_invoice_url"`
	Payload       string `json:"payload"`
}

type cryptoInvoices struct {
	Items []cryptoInvoice `json:"items"`
}

// NewCryptoBot создаёт клиент; timeout ограничивает каждый запрос к API.
func NewCryptoBot(baseURL, token, returnURL string, timeout time.Duration) *CryptoBot {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Crypto-Pay-API-Token", token).
		SetHeader("Content-Type", "application/json")
	return &CryptoBot{client: client, returnURL: returnURL}
}

func (c *CryptoBot) CreateInvoice(ctx context.Context, userID int64, amountUSDT decimal.Decimal) (Invoice, error) {
	body := map[string]interface{}{
		"asset":           usdtAsset,
		"amount":          amountUSDT.StringFixed(2),
		"description":     fmt.Sprintf("Пополнение баланса для пользователя %d", userID),
		"payload":         strconv.FormatInt(userID, 10),
		"allow_comments":  false,
		"allow_anonymous": false,
	}
	if c.returnURL != "" {
		body["paid_btn_name"] = "callback"
		body["paid_btn_url"] = c.returnURL
	}
	var out cryptoResponse[cryptoInvoice]
	resp, err := c.client.R().SetContext(ctx).SetBody(body).SetResult(&out).SetError(&out).Post("/createInvoice")
	if err != nil {
		return Invoice{}, fmt.Errorf("%w: create invoice: %v", ErrGatewayUnavailable, err)
	}
	if err := checkResponse(resp, out.OK, out.Error); err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	payURL := out.Result.BotInvoiceURL
	if payURL == "" {
		payURL = out.Result.PayURL
	}
	return Invoice{
		ID:         strconv.FormatInt(out.Result.InvoiceID, 10),
		PayURL:     payURL,
		AmountUSDT: amountUSDT,
	}, nil
}

// CheckStatus запрашивает статус счёта: active -> created, paid -> paid, expired -> expired.
func (c *CryptoBot) CheckStatus(ctx context.Context, invoiceID string) (db.PaymentStatus, error) {
	var out cryptoResponse[cryptoInvoices]
	resp, err := c.client.R().SetContext(ctx).
		SetQueryParam("invoice_ids", invoiceID).
		SetResult(&out).SetError(&out).
		Get("/getInvoices")
	if err != nil {
		return "", fmt.Errorf("%w: get invoice %s: %v", ErrGatewayUnavailable, invoiceID, err)
	}
	if err := checkResponse(resp, out.OK, out.Error); err != nil {
		return "", fmt.Errorf("get invoice %s: %w", invoiceID, err)
	}
	for _, item := range out.Result.Items {
		if strconv.FormatInt(item.InvoiceID, 10) != invoiceID {
			continue
		}
		switch item.Status {
		case "active":
			return db.PaymentCreated, nil
		case "paid":
			return db.PaymentPaid, nil
		case "expired":
			return db.PaymentExpired, nil
		default:
			return "", fmt.Errorf("invoice %s: unknown status %q", invoiceID, item.Status)
		}
	}
	return "", fmt.Errorf("invoice %s: %w", invoiceID, db.ErrNotFound)
}

func checkResponse(resp *resty.Response, ok bool, apiErr *struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}) error {
	if resp.StatusCode() >= 500 || resp.StatusCode() == 429 {
		return fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode())
	}
	if resp.IsError() || !ok {
		if apiErr != nil {
			return fmt.Errorf("crypto pay error %d %s", apiErr.Code, apiErr.Name)
		}
		return fmt.Errorf("crypto pay http %d", resp.StatusCode())
	}
	return nil
}
