package gotdclient

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	boltstor "github.com/gotd/contrib/bbolt"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/telegram/auth"
	tgupdates "github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/storage"
	"telegram-reader/internal/infra/telegram/cache"
	"telegram-reader/internal/infra/telegram/peersmgr"
)

// SetParameters запоминает идентичность приложения и переводит авторизацию
// к ожиданию ключа базы.
func (c *Client) SetParameters(ctx context.Context, params tdapi.Parameters) error {
	if err := c.expectState(tdapi.AuthorizationStateWaitParameters); err != nil {
		return err
	}
	if params.APIID == 0 || strings.TrimSpace(params.APIHash) == "" {
		return errors.New("api id and api hash are required")
	}

	c.mu.Lock()
	p := params
	c.params = &p
	c.mu.Unlock()

	return c.awaitDelivery(ctx, c.setState(tdapi.AuthorizationStateWaitEncryptionKey))
}

// CheckDatabaseEncryptionKey открывает локальную базу и запускает MTProto-движок.
// Шифрование базы не поддерживается: непустой ключ отклоняется.
func (c *Client) CheckDatabaseEncryptionKey(ctx context.Context, key []byte) error {
	if len(key) > 0 {
		return tdapi.ErrEncryptedDatabase
	}
	if err := c.expectState(tdapi.AuthorizationStateWaitEncryptionKey); err != nil {
		return err
	}

	c.mu.Lock()
	params, busy := c.params, c.opening || c.engine != nil
	if params != nil && !busy {
		c.opening = true
	}
	c.mu.Unlock()
	if params == nil || busy {
		return errors.Wrap(tdapi.ErrUnexpectedState, "engine already started or parameters missing")
	}

	if err := c.openEngine(ctx, *params); err != nil {
		// Состояние остаётся WaitEncryptionKey, вызов можно повторить.
		c.mu.Lock()
		c.opening = false
		c.mu.Unlock()
		return err
	}

	c.publish(tdapi.UpdateConnectionState{State: tdapi.ConnectionStateConnecting})
	c.group.Go(c.run)
	return nil
}

// openEngine собирает базу, кэш сообщений, движок, менеджер пиров и менеджер апдейтов.
func (c *Client) openEngine(ctx context.Context, params tdapi.Parameters) error {
	db, err := storage.OpenDB(c.opts.DatabaseFile)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	messages, err := cache.NewMessages(db)
	if err != nil {
		_ = db.Close()
		return err
	}
	engine, err := c.opts.NewEngine(params, c.handler)
	if err != nil {
		_ = db.Close()
		return errors.Wrap(err, "create engine")
	}
	peersSvc, err := peersmgr.New(engine.API(), db)
	if err != nil {
		_ = db.Close()
		return errors.Wrap(err, "init peers manager")
	}
	if err := peersSvc.LoadFromStorage(ctx); err != nil {
		logger.Warn("gotdclient: load peers storage", zap.Error(err))
	}

	var updMgr *tgupdates.Manager
	if !c.opts.NoUpdates {
		dispatcher := tg.NewUpdateDispatcher()
		dispatcher.OnNewMessage(c.onNewMessage)
		dispatcher.OnNewChannelMessage(c.onNewChannelMessage)
		updMgr = tgupdates.New(tgupdates.Config{
			Handler:      dispatcher,
			Storage:      boltstor.NewStateStorage(db),
			AccessHasher: peersSvc.Mgr,
			Logger:       c.opts.Logger,
		})
		c.handler.set(contribstorage.UpdateHook(peersSvc.Mgr.UpdateHook(updMgr), peersSvc.Store()))
	}

	c.mu.Lock()
	c.db = db
	c.messages = messages
	c.engine = engine
	c.peers = peersSvc
	c.updates = updMgr
	c.mu.Unlock()
	return nil
}

// run держит MTProto-соединение до остановки клиента.
func (c *Client) run() error {
	ctx := c.lifetime()
	engine, err := c.currentEngine()
	if err != nil {
		return err
	}
	err = engine.Run(ctx, c.serve)
	if err == nil || ctx.Err() != nil {
		return nil
	}

	logger.Error("gotdclient: engine stopped", zap.Error(err))
	c.mu.Lock()
	c.runErr = err
	c.mu.Unlock()
	<-c.setState(tdapi.AuthorizationStateClosed)
	return err
}

// serve выполняется внутри активного соединения: определяет статус авторизации
// и ждёт остановки.
func (c *Client) serve(ctx context.Context) error {
	engine, err := c.currentEngine()
	if err != nil {
		return err
	}
	status, err := engine.Auth().Status(ctx)
	if err != nil {
		return errors.Wrap(err, "auth status")
	}
	c.publish(tdapi.UpdateConnectionState{State: tdapi.ConnectionStateReady})

	if status.Authorized {
		logger.Debug("gotdclient: session restored")
		if err := c.finishLogin(ctx, status.User); err != nil {
			return err
		}
	} else {
		c.setState(tdapi.AuthorizationStateWaitPhoneNumber)
	}

	<-ctx.Done()
	return ctx.Err()
}

// SetAuthenticationPhoneNumber отправляет код подтверждения на номер.
func (c *Client) SetAuthenticationPhoneNumber(ctx context.Context, phone string) error {
	if err := c.expectState(tdapi.AuthorizationStateWaitPhoneNumber); err != nil {
		return err
	}
	engine, err := c.currentEngine()
	if err != nil {
		return err
	}
	sent, err := engine.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return errors.Wrap(err, "send code")
	}

	switch s := sent.(type) {
	case *tg.AuthSentCode:
		c.mu.Lock()
		c.phone = phone
		c.codeHash = s.PhoneCodeHash
		c.mu.Unlock()
		return c.awaitDelivery(ctx, c.setState(tdapi.AuthorizationStateWaitCode))
	case *tg.AuthSentCodeSuccess:
		a, ok := s.Authorization.(*tg.AuthAuthorization)
		if !ok {
			return errors.Wrap(tdapi.ErrSignUpRequired, "send code")
		}
		return c.finishLogin(ctx, a.User)
	default:
		return errors.Errorf("unexpected sent code type %T", sent)
	}
}

// CheckAuthenticationCode проверяет код. Если у аккаунта включена 2FA, переводит
// авторизацию в ожидание пароля и возвращает nil.
func (c *Client) CheckAuthenticationCode(ctx context.Context, code string) error {
	if err := c.expectState(tdapi.AuthorizationStateWaitCode); err != nil {
		return err
	}
	engine, err := c.currentEngine()
	if err != nil {
		return err
	}
	c.mu.Lock()
	phone, hash := c.phone, c.codeHash
	c.mu.Unlock()

	a, err := engine.Auth().SignIn(ctx, phone, code, hash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return c.awaitDelivery(ctx, c.setState(tdapi.AuthorizationStateWaitPassword))
	}
	var signUp *auth.SignUpRequired
	if errors.As(err, &signUp) {
		return errors.Wrap(tdapi.ErrSignUpRequired, "sign in")
	}
	if err != nil {
		return errors.Wrap(err, "sign in")
	}
	return c.finishLogin(ctx, a.User)
}

// CheckAuthenticationPassword проверяет пароль 2FA.
func (c *Client) CheckAuthenticationPassword(ctx context.Context, password string) error {
	if err := c.expectState(tdapi.AuthorizationStateWaitPassword); err != nil {
		return err
	}
	engine, err := c.currentEngine()
	if err != nil {
		return err
	}
	a, err := engine.Auth().Password(ctx, password)
	if err != nil {
		return errors.Wrap(err, "check password")
	}
	return c.finishLogin(ctx, a.User)
}

// finishLogin публикует пользователя и состояние Ready, затем запускает менеджер апдейтов.
func (c *Client) finishLogin(ctx context.Context, user tg.UserClass) error {
	self, ok := user.(*tg.User)
	if !ok {
		var err error
		if self, err = c.fetchSelf(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.self = self
	c.mu.Unlock()

	logger.Debug("gotdclient: authorized", zap.Int64("user_id", self.ID))
	c.publish(tdapi.UpdateUser{User: convertUser(self)})
	if err := c.awaitDelivery(ctx, c.setState(tdapi.AuthorizationStateReady)); err != nil {
		return err
	}
	c.startUpdates(self.ID)
	return nil
}

// startUpdates прогревает peers.Manager и запускает менеджер апдейтов в группе клиента.
func (c *Client) startUpdates(selfID int64) {
	c.mu.Lock()
	updMgr, peersSvc, engine := c.updates, c.peers, c.engine
	c.mu.Unlock()
	if updMgr == nil {
		return
	}

	c.group.Go(func() error {
		ctx := c.lifetime()
		if err := peersSvc.Mgr.Init(ctx); err != nil {
			logger.Warn("gotdclient: init peers manager", zap.Error(err))
		}
		err := updMgr.Run(ctx, engine.API(), selfID, tgupdates.AuthOptions{
			OnStart: func(context.Context) {
				logger.Debug("gotdclient: updates manager started")
			},
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("gotdclient: updates manager stopped", zap.Error(err))
		}
		return nil
	})
}

// currentEngine возвращает запущенный движок или tdapi.ErrNotStarted.
func (c *Client) currentEngine() (Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return nil, tdapi.ErrNotStarted
	}
	return c.engine, nil
}

func (c *Client) fetchSelf(ctx context.Context) (*tg.User, error) {
	engine, err := c.currentEngine()
	if err != nil {
		return nil, err
	}
	users, err := engine.API().UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUserSelf{}})
	if err != nil {
		return nil, errors.Wrap(err, "get self")
	}
	for _, u := range users {
		if self, ok := u.(*tg.User); ok {
			return self, nil
		}
	}
	return nil, errors.New("self user not returned")
}
