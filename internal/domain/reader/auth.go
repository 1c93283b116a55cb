package reader

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"telegram-reader/internal/infra/logger"
)

// AuthType — вид запрашиваемого секрета.
type AuthType int

const (
	AuthTypeCode AuthType = iota
	AuthTypePassword
)

// String возвращает имя вида секрета.
func (t AuthType) String() string {
	if t == AuthTypePassword {
		return "password"
	}
	return "code"
}

// CredentialProvider выдаёт код подтверждения или пароль 2FA по запросу.
// Вызывается только из RunAuthentication, синхронно, не более двух раз за сессию.
type CredentialProvider interface {
	Credential(ctx context.Context, kind AuthType) (string, error)
}

// CredentialFunc — адаптер обычной функции к CredentialProvider.
type CredentialFunc func(ctx context.Context, kind AuthType) (string, error)

// Credential вызывает f.
func (f CredentialFunc) Credential(ctx context.Context, kind AuthType) (string, error) {
	return f(ctx, kind)
}

// ErrEmptyCredential — поставщик вернул пустую строку.
var ErrEmptyCredential = errors.New("empty credential")

// RunAuthentication проводит интерактивный вход: телефон → код → (пароль, если нужен).
// Вызывать только после WaitReady; если вход не нужен, сразу возвращает nil.
// Повторов нет: любой отказ сервера (неверный код, истёкший вызов, неверный пароль)
// возвращается вызывающему, политика переспроса — на его стороне.
func (s *Session) RunAuthentication(ctx context.Context) error {
	if !s.ready.Signaled() {
		return ErrNotReady
	}
	if !s.NeedsAuth() {
		return nil
	}

	logger.Info("Authorization required, submitting phone number")
	if err := s.client.SetAuthenticationPhoneNumber(ctx, s.identity.Phone); err != nil {
		return errors.Wrap(err, "set phone number")
	}
	// Сервер может авторизовать уже на шаге телефона (сохранённый токен входа),
	// тогда Ready доставлен до возврата и код не нужен.
	if s.Authorized() {
		logger.Info("Authorization complete (code not required)")
		return nil
	}

	code, err := s.credential(ctx, AuthTypeCode)
	if err != nil {
		return err
	}
	if err = s.client.CheckAuthenticationCode(ctx, code); err != nil {
		return errors.Wrap(err, "check code")
	}

	// Флаг выставляет диспетчер по апдейту WaitPassword, который клиент доставляет до возврата из CheckAuthenticationCode.
	if !s.NeedsPassword() {
		logger.Info("Authorization complete")
		return nil
	}

	password, err := s.credential(ctx, AuthTypePassword)
	if err != nil {
		return err
	}
	if err = s.client.CheckAuthenticationPassword(ctx, password); err != nil {
		return errors.Wrap(err, "check password")
	}
	logger.Info("Authorization complete (2FA)")
	return nil
}

func (s *Session) credential(ctx context.Context, kind AuthType) (string, error) {
	if s.creds == nil {
		return "", errors.Errorf("no credential provider for %s", kind)
	}
	value, err := s.creds.Credential(ctx, kind)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", kind)
	}
	if strings.TrimSpace(value) == "" {
		return "", errors.Wrapf(ErrEmptyCredential, "read %s", kind)
	}
	return value, nil
}
