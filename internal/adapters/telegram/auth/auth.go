// Package auth предоставляет терминальный поставщик учётных данных для входа в Telegram.
// Код подтверждения читается через общий readline, пароль 2FA — без эха.
// Если stdin не терминал (пайп, CI), пароль читается обычной строкой.
package auth

import (
	"context"

	"github.com/go-faster/errors"

	"telegram-reader/internal/domain/reader"
	"telegram-reader/internal/infra/pr"
)

// Приглашения терминального ввода.
const (
	codePrompt     = "Enter the code from Telegram: "
	passwordPrompt = "Enter 2FA password: "
)

// TerminalProvider реализует reader.CredentialProvider поверх консоли.
// Нулевое значение готово к работе и читает из pr.
type TerminalProvider struct {
	// ReadLine и ReadSecret подменяются в тестах; nil — pr.ReadLine и pr.ReadSecret.
	ReadLine   func(prompt string) (string, error)
	ReadSecret func(prompt string) (string, error)
}

// Credential запрашивает у пользователя код или пароль. Формат не проверяется:
// пустую строку отклоняет сессия.
func (t TerminalProvider) Credential(ctx context.Context, kind reader.AuthType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if kind == reader.AuthTypePassword {
		return t.password()
	}
	return t.readLine()(codePrompt)
}

func (t TerminalProvider) password() (string, error) {
	secret, err := t.readSecret()(passwordPrompt)
	if errors.Is(err, pr.ErrNoTerminal) {
		return t.readLine()(passwordPrompt)
	}
	return secret, err
}

func (t TerminalProvider) readLine() func(string) (string, error) {
	if t.ReadLine != nil {
		return t.ReadLine
	}
	return pr.ReadLine
}

func (t TerminalProvider) readSecret() func(string) (string, error) {
	if t.ReadSecret != nil {
		return t.ReadSecret
	}
	return pr.ReadSecret
}

var _ reader.CredentialProvider = TerminalProvider{}
