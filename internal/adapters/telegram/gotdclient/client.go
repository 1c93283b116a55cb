// Package gotdclient — внешний клиент Telegram поверх gotd/td с событийной моделью
// в духе TDLib: состояние авторизации, пользователь и соединение приходят как апдейты
// в подписчиков, а запросы (параметры, ключ базы, телефон, код, пароль, чаты, история)
// выполняются как блокирующие round-trip вызовы.
//
// Апдейты доставляются одной горутиной из упорядоченной очереди, поэтому подписчик
// никогда не вызывается параллельно сам с собой. Запросы, меняющие состояние
// авторизации, возвращаются только после доставки соответствующего апдейта.
package gotdclient

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	tgupdates "github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/telegram/cache"
	"telegram-reader/internal/infra/telegram/peersmgr"
)

const (
	// queueSize — ёмкость очереди доставки апдейтов.
	queueSize = 64
	// closeDeliveryTimeout ограничивает доставку финального состояния Closed.
	closeDeliveryTimeout = 2 * time.Second
)

// Options настраивает клиент.
type Options struct {
	SessionFile  string // файл MTProto-сессии
	DatabaseFile string // общая bbolt-база: пиры, состояние апдейтов, кэш сообщений
	ThrottleRPS  int    // ограничение исходящих запросов в секунду
	// Logger получает внутренние логи gotd; nil — без логов.
	Logger *zap.Logger
	// NoUpdates отключает менеджер апдейтов и прогрев peers.Manager после входа.
	NoUpdates bool
	// NewEngine создаёт MTProto-движок; nil — telegram.Client из gotd.
	NewEngine EngineFactory
}

type delivery struct {
	update tdapi.Update
	done   chan struct{}
}

// Client реализует запросы ридера поверх gotd.
type Client struct {
	opts Options

	handlers []func(tdapi.Update)
	queue    chan delivery

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group

	mu       sync.Mutex
	state    tdapi.AuthorizationState
	params   *tdapi.Parameters
	engine   Engine
	opening  bool
	db       *bbolt.DB
	peers    *peersmgr.Service
	messages *cache.Messages
	updates  *tgupdates.Manager
	handler  *lazyUpdateHandler
	phone    string
	codeHash string
	self     *tg.User
	runErr   error

	closeOnce sync.Once
	closeErr  error
}

// New создаёт клиент. Сеть не трогается до CheckDatabaseEncryptionKey.
func New(opts Options) *Client {
	if opts.NewEngine == nil {
		opts.NewEngine = newTelegramEngine(opts)
	}
	return &Client{
		opts:    opts,
		queue:   make(chan delivery, queueSize),
		handler: &lazyUpdateHandler{},
		state:   tdapi.AuthorizationStateUnknown,
	}
}

// Subscribe регистрирует получателя апдейтов. Вызывать до Start.
func (c *Client) Subscribe(h func(tdapi.Update)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Start запускает доставку апдейтов и публикует первое состояние авторизации.
// Клиент живёт, пока не отменён ctx или не вызван Close.
func (c *Client) Start(ctx context.Context) error {
	started := false
	c.startOnce.Do(func() {
		started = true
		runCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(runCtx)

		c.mu.Lock()
		c.cancel = cancel
		c.group = g
		c.ctx = gctx
		handlers := append([]func(tdapi.Update){}, c.handlers...)
		c.mu.Unlock()

		g.Go(func() error {
			c.deliver(gctx, handlers)
			return nil
		})
		c.setState(tdapi.AuthorizationStateWaitParameters)
	})
	if !started {
		return errors.New("client already started")
	}
	return nil
}

// Done закрывается, когда клиент остановлен (Close, отмена или фатальная ошибка).
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	return c.ctx.Done()
}

// Err возвращает фатальную ошибку MTProto-движка, если она была.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// deliver — единственная горутина, вызывающая подписчиков.
func (c *Client) deliver(ctx context.Context, handlers []func(tdapi.Update)) {
	for {
		select {
		case d := <-c.queue:
			for _, h := range handlers {
				h(d.update)
			}
			close(d.done)
		case <-ctx.Done():
			return
		}
	}
}

// publish ставит апдейт в очередь. Возвращаемый канал закрывается после того,
// как все подписчики его обработали.
func (c *Client) publish(u tdapi.Update) <-chan struct{} {
	d := delivery{update: u, done: make(chan struct{})}
	ctx := c.lifetime()
	select {
	case c.queue <- d:
	case <-ctx.Done():
		close(d.done)
	}
	return d.done
}

// setState фиксирует состояние авторизации и публикует его.
// После Closed другие состояния не публикуются.
func (c *Client) setState(s tdapi.AuthorizationState) <-chan struct{} {
	c.mu.Lock()
	if c.state == tdapi.AuthorizationStateClosed {
		c.mu.Unlock()
		done := make(chan struct{})
		close(done)
		return done
	}
	c.state = s
	c.mu.Unlock()
	logger.Debug("gotdclient: authorization state", zap.Stringer("state", s))
	return c.publish(tdapi.UpdateAuthorizationState{State: s})
}

// awaitDelivery ждёт доставки апдейта, отмены запроса или остановки клиента.
func (c *Client) awaitDelivery(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.lifetime().Done():
		return nil
	}
}

func (c *Client) lifetime() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Client) currentState() tdapi.AuthorizationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// expectState проверяет, что запрос соответствует текущему шагу авторизации.
func (c *Client) expectState(want tdapi.AuthorizationState) error {
	if got := c.currentState(); got != want {
		return errors.Wrapf(tdapi.ErrUnexpectedState, "state %s, want %s", got, want)
	}
	return nil
}

// Close публикует состояние Closed, останавливает движок и закрывает базу.
// Повторные вызовы возвращают результат первого.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		cancel, group := c.cancel, c.group
		c.mu.Unlock()

		if cancel != nil {
			ctx, stop := context.WithTimeout(context.Background(), closeDeliveryTimeout)
			_ = c.awaitDelivery(ctx, c.setState(tdapi.AuthorizationStateClosed))
			stop()

			cancel()
			if err := group.Wait(); err != nil {
				logger.Debug("gotdclient: run group finished", zap.Error(err))
			}
		}

		c.mu.Lock()
		db := c.db
		c.db = nil
		c.mu.Unlock()
		if db != nil {
			c.closeErr = errors.Wrap(db.Close(), "close database")
		}
		logger.Debug("gotdclient: closed")
	})
	return c.closeErr
}
