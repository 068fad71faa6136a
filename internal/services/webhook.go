package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"stream-boost-bot/internal/db"
)

const (
	signatureHeader = "crypto-pay-api-signature"
	maxWebhookBody  = 1 << 20
)

// PaymentSettler зачисляет счёт по его id
type PaymentSettler interface {
	Settle(ctx context.Context, invoiceID string) (bool, error)
}

// AdminAlerter доставляет тревожные сообщения администраторам
type AdminAlerter interface {
	NotifyAdmin(ctx context.Context, text string)
}

// Проверка подписи webhook Crypto Pay: HMAC-SHA256 тела, ключ — SHA256 от токена приложения
func checkCryptoBotSignature(token string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	secret := sha256.Sum256([]byte(token))
	h := hmac.New(sha256.New, secret[:])
	h.Write(body)
	calc := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(calc))
}

// WebhookHandler обрабатывает уведомления Crypto Pay об оплате счетов
func WebhookHandler(token string, settler PaymentSettler, alerts AdminAlerter, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			log.Warn("webhook body read failed", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !checkCryptoBotSignature(token, body, r.Header.Get(signatureHeader)) {
			alerts.NotifyAdmin(r.Context(), "Недействительная подпись webhook Crypto Pay")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("invalid signature"))
			return
		}
		var event struct {
			UpdateType string `json:"update_type"`
			Payload    struct {
				InvoiceID int64  `json:"invoice_id"`
				Status    string `json:"status"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(body, &event); err != nil {
			log.Warn("webhook parse failed", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if event.UpdateType != "invoice_paid" {
			w.WriteHeader(http.StatusOK)
			return
		}
		invoiceID := strconv.FormatInt(event.Payload.InvoiceID, 10)
		settled, err := settler.Settle(r.Context(), invoiceID)
		switch {
		case errors.Is(err, db.ErrNotFound):
			// счёт выставлен не этим ботом
			log.Warn("webhook for unknown invoice", zap.String("invoice_id", invoiceID))
		case err != nil:
			// не подтверждаем: шлюз повторит доставку, а сверка подхватит счёт в любом случае
			log.Error("webhook settlement failed", zap.String("invoice_id", invoiceID), zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		default:
			log.Info("webhook processed", zap.String("invoice_id", invoiceID), zap.Bool("settled", settled))
		}
		w.WriteHeader(http.StatusOK)
	}
}
