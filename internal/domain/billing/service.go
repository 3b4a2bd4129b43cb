// Package billing содержит граничный контракт с биллинг-провайдером:
// создание чекаут-сессий и события вебхуков. Детали протокола провайдера
// живут в infrastructure/external; здесь - только типы и правила валидации.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECKOUT
// ══════════════════════════════════════════════════════════════════════════════

// CheckoutRequest - запрос на создание чекаут-сессии.
type CheckoutRequest struct {
	// UserID - идентификатор пользователя. Пустой - гостевой чекаут.
	UserID string

	// PriceID - ссылка на цену/продукт у провайдера.
	PriceID string

	// SuccessURL - куда вернуть пользователя после оплаты.
	SuccessURL string

	// CancelURL - куда вернуть пользователя при отмене.
	CancelURL string

	// Reference - внутренний идентификатор попытки чекаута (UUID).
	Reference string
}

// CheckoutSession - созданная провайдером сессия.
type CheckoutSession struct {
	// SessionID - идентификатор сессии у провайдера.
	SessionID string

	// RedirectURL - URL hosted-страницы оплаты.
	RedirectURL string

	// CustomerID - идентификатор клиента у провайдера (если известен).
	CustomerID string

	// ExpiresAt - когда сессия протухает.
	ExpiresAt time.Time
}

// CheckoutService - порт создания чекаут-сессий.
// Реализация - infrastructure/external/stripe.
type CheckoutService interface {
	// CreateCheckoutSession создаёт сессию и возвращает redirect URL,
	// уже прошедший валидацию allow-list.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIRECT VALIDATION
// Любой внешне полученный redirect-таргет проверяется против allow-list
// хостов. Всё остальное отклоняется как потенциальный open redirect.
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrUntrustedRedirect - хост redirect URL не входит в allow-list.
	ErrUntrustedRedirect = errors.New("billing: redirect host is not allow-listed")

	// ErrMalformedRedirect - redirect URL не разбирается или не https.
	ErrMalformedRedirect = errors.New("billing: malformed redirect url")
)

// ValidateRedirect проверяет redirect URL против списка доверенных хостов.
// Сравнение точное по хосту без учёта регистра; поддоменные трюки вида
// checkout.stripe.com.evil.io не проходят.
func ValidateRedirect(raw string, allowedHosts []string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRedirect, err)
	}

	if u.Scheme != "https" || u.Hostname() == "" {
		return fmt.Errorf("%w: %q", ErrMalformedRedirect, raw)
	}

	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		if host == strings.ToLower(strings.TrimSpace(allowed)) {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrUntrustedRedirect, host)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// EventKind - тип события вебхука провайдера.
type EventKind string

const (
	// EventCheckoutCompleted - чекаут завершён успешно.
	EventCheckoutCompleted EventKind = "checkout.session.completed"
	// EventSubscriptionUpdated - подписка изменилась (продление, смена плана).
	EventSubscriptionUpdated EventKind = "customer.subscription.updated"
	// EventSubscriptionDeleted - подписка отменена.
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
	// EventPaymentFailed - платёж не прошёл.
	EventPaymentFailed EventKind = "invoice.payment_failed"
)

// WebhookEvent - нормализованное событие вебхука после верификации подписи.
type WebhookEvent struct {
	// ID - идентификатор события у провайдера (для идемпотентности).
	ID string

	// Kind - тип события.
	Kind EventKind

	// CustomerID - клиент, которого касается событие.
	CustomerID string

	// SubscriptionID - подписка провайдера (если применимо).
	SubscriptionID string

	// Status - статус подписки в терминах провайдера
	// (active, trialing, past_due, canceled).
	Status string

	// CurrentPeriodEnd - конец оплаченного периода (если применимо).
	CurrentPeriodEnd *time.Time

	// ClientReference - наш Reference из чекаута (связь с UserID).
	ClientReference string

	// ReceivedAt - когда событие принято нашим вебхук-эндпоинтом.
	ReceivedAt time.Time
}
