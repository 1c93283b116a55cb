package gotdclient

import (
	"context"
	"sync"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/telegram/session"
)

// Engine — MTProto-движок: держит соединение на время Run и даёт доступ к RPC.
// *telegram.Client удовлетворяет интерфейсу; тесты подставляют движок поверх фейкового tg.Invoker.
type Engine interface {
	Run(ctx context.Context, f func(ctx context.Context) error) error
	API() *tg.Client
	Auth() *auth.Client
}

// EngineFactory создаёт движок по параметрам клиента. handler получает сырые апдейты MTProto.
type EngineFactory func(params tdapi.Parameters, handler telegram.UpdateHandler) (Engine, error)

// telegramEngine оборачивает Run клиента в ожидание FLOOD_WAIT.
type telegramEngine struct {
	*telegram.Client
	waiter *floodwait.Waiter
}

func (e *telegramEngine) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return e.waiter.Run(ctx, func(ctx context.Context) error {
		return e.Client.Run(ctx, f)
	})
}

// newTelegramEngine возвращает фабрику движка на базе telegram.Client.
func newTelegramEngine(opts Options) EngineFactory {
	return func(params tdapi.Parameters, handler telegram.UpdateHandler) (Engine, error) {
		waiter := floodwait.NewWaiter()
		rps := max(opts.ThrottleRPS, 1)

		sessionStorage := &session.FileStorage{Path: opts.SessionFile}
		logger.Debug("gotdclient: session storage",
			zap.String("path", opts.SessionFile), zap.Bool("exists", sessionStorage.Exists()))

		options := telegram.Options{
			SessionStorage: sessionStorage,
			UpdateHandler:  handler,
			Middlewares: []telegram.Middleware{
				waiter,
				ratelimit.New(rate.Limit(rps), rps*2), //nolint:mnd // burst = 2*rate
			},
			Device: telegram.DeviceConfig{
				DeviceModel:    params.DeviceModel,
				SystemVersion:  params.SystemVersion,
				AppVersion:     params.ApplicationVersion,
				SystemLangCode: params.SystemLanguageCode,
				LangCode:       params.SystemLanguageCode,
			},
			Logger: opts.Logger,
		}
		if params.UseTestDC {
			options.DCList = dcs.Test()
		}

		return &telegramEngine{
			Client: telegram.NewClient(params.APIID, params.APIHash, options),
			waiter: waiter,
		}, nil
	}
}

// lazyUpdateHandler позволяет отложить установку реального обработчика апдейтов:
// клиент gotd создаётся раньше, чем менеджер пиров и апдейтов, которым нужен его API.
type lazyUpdateHandler struct {
	mu      sync.RWMutex
	handler telegram.UpdateHandler
}

func (h *lazyUpdateHandler) Handle(ctx context.Context, u tg.UpdatesClass) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.handler != nil {
		return h.handler.Handle(ctx, u)
	}
	return nil
}

func (h *lazyUpdateHandler) set(realHandler telegram.UpdateHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = realHandler
}
