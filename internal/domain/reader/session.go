// Package reader — ядро ридера истории Telegram.
// Session связывает внешний клиент, диспетчер апдейтов, машину состояний авторизации,
// защёлку готовности и поставщика учётных данных. Поверх сессии работают резолвер
// чатов по названию и ленивый постраничный обход истории.
//
// Порядок работы:
//  1. клиент доставляет апдейты в HandleUpdate (последовательно, по одному);
//  2. вызывающий ждёт WaitReady — пока диспетчер не решит, нужна ли авторизация;
//  3. при NeedsAuth() вызывающий запускает RunAuthentication;
//  4. далее ResolveChatID и StreamMessages/NewHistory.
package reader

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/concurrency"
	"telegram-reader/internal/infra/logger"
)

// Client — запросы к внешней клиентской библиотеке, которые нужны сессии.
// Каждый вызов — блокирующий round-trip; ошибки возвращаются без изменений.
type Client interface {
	SetParameters(ctx context.Context, params tdapi.Parameters) error
	CheckDatabaseEncryptionKey(ctx context.Context, key []byte) error
	SetAuthenticationPhoneNumber(ctx context.Context, phone string) error
	CheckAuthenticationCode(ctx context.Context, code string) error
	CheckAuthenticationPassword(ctx context.Context, password string) error
	GetMe(ctx context.Context) (*tdapi.User, error)
	GetChats(ctx context.Context, limit int) ([]int64, error)
	GetChat(ctx context.Context, chatID int64) (*tdapi.Chat, error)
	GetChatHistory(ctx context.Context, req tdapi.HistoryRequest) (*tdapi.Messages, error)
	Close() error
}

// Identity — фиксированные параметры сессии: идентичность приложения и номер телефона.
type Identity struct {
	Parameters tdapi.Parameters
	Phone      string
}

var (
	// ErrNotReady — RunAuthentication вызван до открытия защёлки готовности.
	ErrNotReady = errors.New("session is not ready")
	// ErrClosed — сессия уже закрыта.
	ErrClosed = errors.New("session is closed")
)

// Session — состояние одной сессии ридера. Создаётся на старте, флаги меняет только
// диспетчер апдейтов, клиент освобождается ровно один раз в Close.
type Session struct {
	client   Client
	identity Identity
	creds    CredentialProvider

	// bootstrapCtx ограничивает «выстрелил и забыл» вызовы диспетчера; отменяется в Close.
	bootstrapCtx    context.Context
	bootstrapCancel context.CancelFunc

	ready *concurrency.Latch // открывается, когда известно, нужна ли авторизация

	mu            sync.Mutex
	needsAuth     bool
	needsPassword bool
	authorized    bool          // клиент сообщил AuthorizationStateReady
	fatalErr      error         // первая ошибка фонового вызова диспетчера
	failed        chan struct{} // закрывается вместе с установкой fatalErr
	failOnce      sync.Once

	closeOnce sync.Once
	closeErr  error
}

// NewSession создаёт сессию поверх клиента. Клиент переходит во владение сессии.
func NewSession(client Client, identity Identity, creds CredentialProvider) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		client:          client,
		identity:        identity,
		creds:           creds,
		bootstrapCtx:    ctx,
		bootstrapCancel: cancel,
		ready:           concurrency.NewLatch(),
		failed:          make(chan struct{}),
	}
}

// NeedsAuth сообщает, требуется ли интерактивный вход.
func (s *Session) NeedsAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsAuth
}

// NeedsPassword сообщает, запросил ли сервер пароль 2FA. Истина влечёт NeedsAuth.
func (s *Session) NeedsPassword() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsPassword
}

// Authorized сообщает, дошёл ли клиент до AuthorizationStateReady.
func (s *Session) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorized
}

// Failed возвращает канал, закрывающийся при фатальной ошибке фонового вызова.
func (s *Session) Failed() <-chan struct{} {
	return s.failed
}

// Err возвращает фатальную ошибку сессии, если она была.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// WaitReady блокирует до открытия защёлки готовности. Возвращает фатальную ошибку
// сессии, если фоновый вызов упал раньше, либо ctx.Err() при отмене/таймауте.
func (s *Session) WaitReady(ctx context.Context) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.failed:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if err := s.ready.Wait(waitCtx); err != nil {
		if fatal := s.Err(); fatal != nil {
			return fatal
		}
		return err
	}
	return nil
}

// Me возвращает текущий аккаунт.
func (s *Session) Me(ctx context.Context) (*tdapi.User, error) {
	me, err := s.client.GetMe(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get me")
	}
	return me, nil
}

// Close освобождает клиент. Повторные вызовы возвращают результат первого.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.bootstrapCancel()
		s.closeErr = s.client.Close()
		logger.Debug("reader session closed")
	})
	return s.closeErr
}

// fail фиксирует первую фатальную ошибку и будит ожидающих.
func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.fatalErr = err
		s.mu.Unlock()
		close(s.failed)
	})
}
