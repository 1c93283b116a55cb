package reader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/logger"
)

// Event — классификация входящего апдейта с точки зрения рукопожатия.
// Перечисление закрыто: всё, что не распознано, попадает в EventOther.
type Event int

const (
	EventOther Event = iota
	EventAwaitingParameters
	EventAwaitingEncryptionKey
	EventAwaitingPhoneNumber
	EventAwaitingCode
	EventAwaitingPassword
	EventUserKnown
	EventConnectionReady
)

// String возвращает имя события для логов.
func (e Event) String() string {
	switch e {
	case EventAwaitingParameters:
		return "awaiting_parameters"
	case EventAwaitingEncryptionKey:
		return "awaiting_encryption_key"
	case EventAwaitingPhoneNumber:
		return "awaiting_phone_number"
	case EventAwaitingCode:
		return "awaiting_code"
	case EventAwaitingPassword:
		return "awaiting_password"
	case EventUserKnown:
		return "user_known"
	case EventConnectionReady:
		return "connection_ready"
	default:
		return "other"
	}
}

// Classify сводит апдейт клиента к Event. Неизвестные варианты и nil дают EventOther.
func Classify(u tdapi.Update) Event {
	switch upd := u.(type) {
	case tdapi.UpdateAuthorizationState:
		switch upd.State {
		case tdapi.AuthorizationStateWaitParameters:
			return EventAwaitingParameters
		case tdapi.AuthorizationStateWaitEncryptionKey:
			return EventAwaitingEncryptionKey
		case tdapi.AuthorizationStateWaitPhoneNumber:
			return EventAwaitingPhoneNumber
		case tdapi.AuthorizationStateWaitCode:
			return EventAwaitingCode
		case tdapi.AuthorizationStateWaitPassword:
			return EventAwaitingPassword
		default:
			return EventOther
		}
	case tdapi.UpdateUser:
		return EventUserKnown
	case tdapi.UpdateConnectionState:
		if upd.State == tdapi.ConnectionStateReady {
			return EventConnectionReady
		}
		return EventOther
	default:
		return EventOther
	}
}

// HandleUpdate — диспетчер апдейтов. Клиент вызывает его последовательно, по одному апдейту;
// вызовы могут идти параллельно с собственными запросами вызывающего.
// Вызовы SetParameters/CheckDatabaseEncryptionKey не ожидаются: они уходят в отдельные горутины,
// а их ошибки становятся фатальной ошибкой сессии (см. Err, WaitReady).
func (s *Session) HandleUpdate(u tdapi.Update) {
	event := Classify(u)
	logger.Debug("reader: update classified", zap.Stringer("event", event))

	switch event {
	case EventAwaitingParameters:
		params := s.identity.Parameters
		s.bootstrap("set parameters", func(ctx context.Context) error {
			return s.client.SetParameters(ctx, params)
		})
	case EventAwaitingEncryptionKey:
		s.bootstrap("check database encryption key", func(ctx context.Context) error {
			return s.client.CheckDatabaseEncryptionKey(ctx, nil)
		})
	case EventAwaitingPhoneNumber, EventAwaitingCode:
		s.mu.Lock()
		s.needsAuth = true
		s.mu.Unlock()
		s.ready.Signal()
	case EventAwaitingPassword:
		s.mu.Lock()
		s.needsAuth = true
		s.needsPassword = true
		s.mu.Unlock()
		s.ready.Signal()
	case EventUserKnown:
		s.ready.Signal()
	case EventConnectionReady:
		// Точка расширения для наблюдателей соединения.
	case EventOther:
		// Ready вне закрытого перечисления: защёлку не трогает, только отмечает вход.
		if st, ok := u.(tdapi.UpdateAuthorizationState); ok && st.State == tdapi.AuthorizationStateReady {
			s.mu.Lock()
			s.authorized = true
			s.mu.Unlock()
		}
	default:
		logger.Debug("reader: unmodeled event", zap.Int("event", int(event)))
	}
}

// bootstrap запускает вызов без ожидания результата. Ошибка не глотается:
// она фиксируется как фатальная ошибка сессии.
func (s *Session) bootstrap(name string, call func(ctx context.Context) error) {
	go func() {
		if err := call(s.bootstrapCtx); err != nil {
			if s.bootstrapCtx.Err() != nil {
				logger.Debug("reader: bootstrap call aborted by close", zap.String("call", name))
				return
			}
			logger.Error("reader: bootstrap call failed", zap.String("call", name), zap.Error(err))
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}
