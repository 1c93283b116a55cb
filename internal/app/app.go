// Package app — верхний уровень сборки ридера истории Telegram.
// Здесь связываются конфигурация, клиент Telegram (gotdclient), сессия ридера
// и терминальный ввод учётных данных. Отсюда стартует доставка апдейтов,
// авторизация и либо разовый режим, либо интерактивная консоль.
package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-reader/internal/adapters/telegram/auth"
	"telegram-reader/internal/adapters/telegram/gotdclient"
	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/domain/reader"
	"telegram-reader/internal/infra/config"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/pr"
	"telegram-reader/internal/support/version"
)

// RunOptions — параметры разового режима из флагов командной строки.
// Пустой Chat включает интерактивную консоль.
type RunOptions struct {
	Chat  string // точное название чата
	Grep  string // печатать только сообщения, содержащие подстроку
	From  int64  // начать со сообщений строго старше этого id; 0 — с самого нового
	Limit int    // сколько сообщений печатать; 0 — HISTORY_PRINT_LIMIT, <0 — всю историю
	Save  string // выгрузить историю в файл JSON lines вместо печати
}

// App агрегирует зависимости ридера и управляет их связью.
type App struct {
	env        config.EnvConfig
	opts       RunOptions
	mainCtx    context.Context    // Контекст жизненного цикла приложения.
	mainCancel context.CancelFunc // Инициирует отмену mainCtx.
	client     *gotdclient.Client // Клиент Telegram: апдейты авторизации и запросы.
	session    *reader.Session    // Сессия ридера поверх клиента.
	runner     *Runner            // Оркестратор авторизации и режимов работы.
}

// NewApp создаёт каркас приложения. Фактическая сборка выполняется в Run().
func NewApp(mainCtx context.Context, mainCancel context.CancelFunc, env config.EnvConfig, opts RunOptions) *App {
	return &App{
		env:        env,
		opts:       opts,
		mainCtx:    mainCtx,
		mainCancel: mainCancel,
	}
}

// Run собирает клиент и сессию, запускает доставку апдейтов и передаёт управление Runner.
// Блокируется до завершения работы.
func (a *App) Run() error {
	logger.Info("Reader initializing...", zap.String("version", version.Version))

	a.client = gotdclient.New(a.clientOptions())
	a.session = reader.NewSession(a.client, reader.Identity{
		Parameters: a.parameters(),
		Phone:      a.env.PhoneNumber,
	}, auth.TerminalProvider{})

	// Порядок подписок важен: сессия видит апдейт раньше журнала.
	a.client.Subscribe(a.session.HandleUpdate)
	a.client.Subscribe(logUpdate)

	if err := a.client.Start(a.mainCtx); err != nil {
		return errors.Wrap(err, "start client")
	}

	a.runner = NewRunner(a.mainCtx, a.mainCancel, a.env, a.opts, a.client, a.session)
	return a.runner.Run()
}

func (a *App) clientOptions() gotdclient.Options {
	opts := gotdclient.Options{
		SessionFile:  a.env.SessionFile,
		DatabaseFile: a.env.DatabaseFile,
		ThrottleRPS:  a.env.ThrottleRPS,
	}
	// Внутренние логи gotd очень подробные: только в режиме отладки.
	if logger.IsDebugEnabled() {
		opts.Logger = logger.Named("gotd")
	}
	return opts
}

func (a *App) parameters() tdapi.Parameters {
	return tdapi.Parameters{
		APIID:              a.env.APIID,
		APIHash:            a.env.APIHash,
		DeviceModel:        a.env.DeviceModel,
		SystemVersion:      a.env.SystemVersion,
		ApplicationVersion: version.Version,
		SystemLanguageCode: a.env.SystemLangCode,
		UseTestDC:          a.env.TestDC,
	}
}

// logUpdate пишет апдейты клиента в журнал.
func logUpdate(u tdapi.Update) {
	switch v := u.(type) {
	case tdapi.UpdateAuthorizationState:
		logger.Debug("authorization state", zap.Stringer("state", v.State))
	case tdapi.UpdateConnectionState:
		logger.Debug("connection state", zap.Stringer("state", v.State))
	case tdapi.UpdateUser:
		if logger.IsDebugEnabled() {
			logger.Debug("user update", zap.String("user", pr.Pf(v.User)))
		}
	case tdapi.UpdateNewMessage:
		logger.Debug("new message",
			zap.Int64("chat_id", v.Message.ChatID),
			zap.Int64("message_id", v.Message.ID))
	}
}
