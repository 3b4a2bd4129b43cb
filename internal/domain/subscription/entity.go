// Package subscription содержит доменную модель подписки и вычисление
// уровня доступа. Сама запись подписки принадлежит внешнему биллингу:
// здесь мы только заимствуем снапшот на один запрос.
package subscription

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет статус подписки, синхронизируемый вебхуками биллинга.
type Status string

const (
	// StatusFree - подписки нет, базовый уровень.
	StatusFree Status = "free"
	// StatusPro - активная платная подписка.
	StatusPro Status = "pro"
	// StatusTrialing - пробный период, доступ как у платной.
	StatusTrialing Status = "trialing"
	// StatusPastDue - платёж просрочен. Грейс-период не моделируется:
	// доступ теряется сразу.
	StatusPastDue Status = "past_due"
	// StatusCanceled - подписка отменена.
	StatusCanceled Status = "canceled"
)

// IsValid проверяет, что статус входит в фиксированный набор.
func (s Status) IsValid() bool {
	switch s {
	case StatusFree, StatusPro, StatusTrialing, StatusPastDue, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsElevated возвращает true только для pro и trialing.
// past_due и canceled теряют повышенный доступ немедленно.
func (s Status) IsElevated() bool {
	return s == StatusPro || s == StatusTrialing
}

// AccessLevel определяет уровень доступа, производный от статуса.
type AccessLevel string

const (
	// AccessFree - бесплатный уровень.
	AccessFree AccessLevel = "free"
	// AccessPro - повышенный уровень.
	AccessPro AccessLevel = "pro"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record - снапшот записи подписки пользователя.
// Создаётся при первом чекауте, обновляется вебхуками биллинга.
// С точки зрения этого ядра - read-only.
type Record struct {
	// ID - внутренний уникальный идентификатор записи (UUID).
	ID string

	// UserID - идентификатор пользователя.
	UserID string

	// Status - текущий статус подписки.
	Status Status

	// CustomerID - идентификатор клиента у биллинг-провайдера (опционально).
	CustomerID string

	// SubscriptionID - идентификатор подписки у биллинг-провайдера (опционально).
	SubscriptionID string

	// CurrentPeriodEnd - конец оплаченного периода (опционально).
	CurrentPeriodEnd *time.Time

	// StartedAt - дата начала подписки, используется для расчёта стажа.
	StartedAt *time.Time

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrRecordNotFound - запись подписки не найдена. Это нормальный
	// исход: отсутствие записи означает бесплатный уровень.
	ErrRecordNotFound = errors.New("subscription record not found")

	// ErrInvalidStatus - статус вне фиксированного набора.
	ErrInvalidStatus = errors.New("invalid subscription status")

	// ErrEmptyUserID - пустой идентификатор пользователя.
	ErrEmptyUserID = errors.New("user id is required")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// NewRecordParams содержит параметры для создания новой записи подписки.
type NewRecordParams struct {
	ID         string
	UserID     string
	Status     Status
	CustomerID string
}

// NewRecord создаёт новую запись подписки с валидацией.
func NewRecord(params NewRecordParams) (*Record, error) {
	if params.ID == "" {
		return nil, errors.New("record id is required")
	}
	if params.UserID == "" {
		return nil, ErrEmptyUserID
	}
	if !params.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, params.Status)
	}

	now := time.Now().UTC()

	return &Record{
		ID:         params.ID,
		UserID:     params.UserID,
		Status:     params.Status,
		CustomerID: params.CustomerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// ApplyBillingUpdate применяет обновление статуса от биллинг-вебхука.
// Первый переход на повышенный уровень фиксирует StartedAt.
func (r *Record) ApplyBillingUpdate(status Status, subscriptionID string, periodEnd *time.Time, at time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if status.IsElevated() && r.StartedAt == nil {
		started := at.UTC()
		r.StartedAt = &started
	}

	r.Status = status
	if subscriptionID != "" {
		r.SubscriptionID = subscriptionID
	}
	r.CurrentPeriodEnd = periodEnd
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// IsLapsed возвращает true, если оплаченный период истёк, а статус
// всё ещё повышенный. Используется фоновой сверкой.
func (r *Record) IsLapsed(now time.Time) bool {
	return r.Status.IsElevated() &&
		r.CurrentPeriodEnd != nil &&
		r.CurrentPeriodEnd.Before(now)
}

// String возвращает строковое представление записи для логирования.
func (r *Record) String() string {
	return fmt.Sprintf("Record{User: %s, Status: %s}", r.UserID, r.Status)
}

// Clone создаёт копию записи.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.CurrentPeriodEnd != nil {
		t := *r.CurrentPeriodEnd
		clone.CurrentPeriodEnd = &t
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		clone.StartedAt = &t
	}
	return &clone
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS DERIVATION
// Чистая проекция: никакого I/O, никакого persisted derived state.
// ══════════════════════════════════════════════════════════════════════════════

// AccessState - производное состояние доступа пользователя.
type AccessState struct {
	// Status - исходный статус подписки ("free" при отсутствии записи).
	Status Status

	// IsElevated - true только для pro/trialing.
	IsElevated bool

	// AccessLevel - "pro" при IsElevated, иначе "free".
	AccessLevel AccessLevel

	// DaysUntilExpiry - дней до конца оплаченного периода.
	// nil - если период не задан; никогда не отрицательно.
	DaysUntilExpiry *int
}

// DeriveAccess вычисляет уровень доступа из снапшота записи.
// nil record трактуется как запись со статусом free.
func DeriveAccess(record *Record, now time.Time) AccessState {
	if record == nil {
		return AccessState{
			Status:      StatusFree,
			IsElevated:  false,
			AccessLevel: AccessFree,
		}
	}

	state := AccessState{
		Status:     record.Status,
		IsElevated: record.Status.IsElevated(),
	}

	if state.IsElevated {
		state.AccessLevel = AccessPro
	} else {
		state.AccessLevel = AccessFree
	}

	if record.CurrentPeriodEnd != nil {
		days := int(math.Ceil(record.CurrentPeriodEnd.Sub(now).Hours() / 24))
		if days < 0 {
			days = 0
		}
		state.DaysUntilExpiry = &days
	}

	return state
}
