// Файл runner.go — точка оркестрации: ожидание готовности сессии, авторизация,
// затем разовый режим или консоль, и корректное завершение. Клиент закрывается
// последним, когда консоль и запросы уже остановлены.
package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-reader/internal/adapters/cli"
	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/domain/reader"
	"telegram-reader/internal/domain/search"
	"telegram-reader/internal/infra/config"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/pr"
)

// clientLifetime — то, что Runner знает о жизни клиента.
type clientLifetime interface {
	Done() <-chan struct{}
	Err() error
}

// Runner инкапсулирует сценарий запуска и остановки ридера.
type Runner struct {
	mainCtx    context.Context
	mainCancel context.CancelFunc
	env        config.EnvConfig
	opts       RunOptions
	client     clientLifetime
	session    *reader.Session
	cliService *cli.Service
}

// NewRunner подготавливает Runner с переданными зависимостями.
func NewRunner(
	mainCtx context.Context,
	mainCancel context.CancelFunc,
	env config.EnvConfig,
	opts RunOptions,
	client clientLifetime,
	session *reader.Session,
) *Runner {
	return &Runner{
		mainCtx:    mainCtx,
		mainCancel: mainCancel,
		env:        env,
		opts:       opts,
		client:     client,
		session:    session,
	}
}

// Run — главный сценарий. Блокируется до завершения разового режима,
// выхода из консоли, сигнала или остановки клиента. Сессия закрывается всегда.
func (r *Runner) Run() (err error) {
	defer func() {
		if closeErr := r.session.Close(); closeErr != nil {
			logger.Error("close session", zap.Error(closeErr))
			if err == nil {
				err = closeErr
			}
		}
	}()

	if err := r.waitReady(); err != nil {
		return err
	}

	if err := r.session.RunAuthentication(r.mainCtx); err != nil {
		return errors.Wrap(err, "auth")
	}

	me, err := r.session.Me(r.mainCtx)
	if err != nil {
		return err
	}
	logger.Logger().Info("Logged in as:",
		zap.String("FirstName", me.FirstName),
		zap.String("LastName", me.LastName),
		zap.String("Username", me.Username),
		zap.Int64("ID", me.ID),
	)

	if r.opts.Chat != "" {
		return r.runOnce()
	}
	return r.runConsole()
}

// waitReady ждёт защёлку готовности не дольше AUTH_WAIT_TIMEOUT_SEC.
// Остановка клиента до готовности прерывает ожидание его ошибкой.
func (r *Runner) waitReady() error {
	ctx, cancel := context.WithTimeout(r.mainCtx, r.env.AuthWaitTimeout())
	defer cancel()
	go func() {
		select {
		case <-r.client.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Debug("waiting for authorization decision")
	err := r.session.WaitReady(ctx)
	if err == nil {
		return nil
	}
	if clientErr := r.client.Err(); clientErr != nil {
		return errors.Wrap(clientErr, "client stopped")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, "authorization state was not decided in time")
	}
	return err
}

// runOnce выполняет разовый режим: резолвит чат и печатает (или выгружает) историю.
// Каждый round-trip ограничен REQUEST_TIMEOUT_SEC, весь обход — только mainCtx.
func (r *Runner) runOnce() error {
	ctx := r.mainCtx
	resolveCtx, cancel := context.WithTimeout(ctx, r.env.RequestTimeout())
	chatID, ok, err := r.session.ResolveChatID(resolveCtx, r.opts.Chat)
	cancel()
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(tdapi.ErrChatNotFound, "%q", r.opts.Chat)
	}
	logger.Info("Chat resolved", zap.String("title", r.opts.Chat), zap.Int64("chat_id", chatID))

	it := r.session.History(chatID, r.opts.From).WithRequestTimeout(r.env.RequestTimeout())
	switch {
	case r.opts.Save != "":
		n, err := cli.Export(ctx, it, r.opts.Save)
		if err != nil {
			return err
		}
		logger.Info("History exported", zap.String("path", r.opts.Save), zap.Int("messages", n))
		return nil
	case r.opts.Grep != "":
		n, err := cli.Grep(ctx, it, search.NewMatcher(r.opts.Grep), func(m tdapi.Message) {
			pr.Println(cli.FormatMessage(m))
		})
		if err != nil {
			return err
		}
		logger.Info("Search finished", zap.Int("found", n), zap.Int("pages", it.Pages()))
		return nil
	}

	limit := r.opts.Limit
	if limit == 0 {
		limit = r.env.HistoryPrintLimit
	}
	printed := 0
	for (limit < 0 || printed < limit) && it.Next(ctx) {
		pr.Println(cli.FormatMessage(it.Value()))
		printed++
	}
	if err := it.Err(); err != nil {
		return err
	}
	logger.Debug("history printed", zap.Int("messages", printed), zap.Int64("cursor", it.Cursor()))
	return nil
}

// runConsole запускает CLI и ждёт его завершения, сигнала или остановки клиента.
func (r *Runner) runConsole() error {
	r.cliService = cli.NewService(r.session, r.mainCancel, cli.Options{
		PrintLimit:     r.env.HistoryPrintLimit,
		RequestTimeout: r.env.RequestTimeout(),
	})
	logger.Debug("starting service cli")
	r.cliService.Start(r.mainCtx)

	select {
	case <-r.mainCtx.Done():
		logger.Debug("Shutdown signal received, stopping runner...")
	case <-r.cliService.Done():
	case <-r.client.Done():
	case <-r.session.Failed():
	}

	logger.Debug("stopping service cli")
	r.cliService.Stop()
	logger.Debug("service cli stopped")

	if err := r.client.Err(); err != nil {
		return errors.Wrap(err, "client stopped")
	}
	if err := r.session.Err(); err != nil {
		return errors.Wrap(err, "session failed")
	}
	return nil
}
