// Package tdapi описывает границу между ридером и внешней клиентской библиотекой Telegram.
// Модель повторяет привычные понятия TDLib: состояния авторизации приходят апдейтами,
// чаты адресуются «помеченными» идентификаторами, история запрашивается от курсора назад.
// Сам пакет не выполняет сетевых вызовов: конкретная реализация живёт в gotdclient.
package tdapi

import (
	"time"

	"github.com/go-faster/errors"
)

// AuthorizationState — закрытое перечисление шагов рукопожатия авторизации.
type AuthorizationState int

const (
	AuthorizationStateUnknown AuthorizationState = iota
	AuthorizationStateWaitParameters
	AuthorizationStateWaitEncryptionKey
	AuthorizationStateWaitPhoneNumber
	AuthorizationStateWaitCode
	AuthorizationStateWaitPassword
	AuthorizationStateReady
	AuthorizationStateClosed
)

// String возвращает имя состояния для логов.
func (s AuthorizationState) String() string {
	switch s {
	case AuthorizationStateWaitParameters:
		return "wait_parameters"
	case AuthorizationStateWaitEncryptionKey:
		return "wait_encryption_key"
	case AuthorizationStateWaitPhoneNumber:
		return "wait_phone_number"
	case AuthorizationStateWaitCode:
		return "wait_code"
	case AuthorizationStateWaitPassword:
		return "wait_password"
	case AuthorizationStateReady:
		return "ready"
	case AuthorizationStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionState — состояние сетевого соединения клиента.
type ConnectionState int

const (
	ConnectionStateWaitingForNetwork ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateReady
)

// String возвращает имя состояния соединения.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateReady:
		return "ready"
	default:
		return "waiting_for_network"
	}
}

// Update — запечатанный интерфейс входящего события клиента.
// Реализации перечислены ниже; новые варианты вне пакета объявить нельзя.
type Update interface {
	isUpdate()
}

// UpdateAuthorizationState сообщает о переходе рукопожатия в новое состояние.
type UpdateAuthorizationState struct {
	State AuthorizationState
}

// UpdateUser несёт сведения о пользователе (в частности, о текущем аккаунте после входа).
type UpdateUser struct {
	User User
}

// UpdateConnectionState сообщает об изменении состояния соединения.
type UpdateConnectionState struct {
	State ConnectionState
}

// UpdateNewMessage — новое входящее или исходящее сообщение.
type UpdateNewMessage struct {
	Message Message
}

func (UpdateAuthorizationState) isUpdate() {}
func (UpdateUser) isUpdate()               {}
func (UpdateConnectionState) isUpdate()    {}
func (UpdateNewMessage) isUpdate()         {}

// Parameters — фиксированная идентичность клиента, передаваемая в SetParameters.
type Parameters struct {
	APIID              int
	APIHash            string
	DeviceModel        string
	SystemVersion      string
	ApplicationVersion string
	SystemLanguageCode string
	UseTestDC          bool
}

// User — проекция аккаунта Telegram.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Phone     string
}

// FullName склеивает имя и фамилию без лишних пробелов.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// ChatKind классифицирует чат.
type ChatKind int

const (
	ChatKindOther ChatKind = iota
	ChatKindPrivate
	ChatKindBasicGroup
	ChatKindSupergroup
)

// String возвращает короткую метку типа чата.
func (k ChatKind) String() string {
	switch k {
	case ChatKindPrivate:
		return "private"
	case ChatKindBasicGroup:
		return "group"
	case ChatKindSupergroup:
		return "supergroup"
	default:
		return "other"
	}
}

// Chat — краткая сводка о чате. Идентификатор помечен по правилам TDLib.
type Chat struct {
	ID    int64
	Title string
	Kind  ChatKind
}

// Message — текстовая проекция сообщения истории.
type Message struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chat_id"`
	SenderID int64     `json:"sender_id,omitempty"`
	Date     time.Time `json:"date"`
	Text     string    `json:"text"`
	Outgoing bool      `json:"outgoing,omitempty"`
	Service  bool      `json:"service,omitempty"` // служебное сообщение (вход в чат, смена названия...)
}

// Messages — одна страница истории, от новых к старым.
type Messages struct {
	Messages []Message
}

// Len возвращает число сообщений на странице.
func (m *Messages) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Messages)
}

// HistoryRequest — параметры GetChatHistory.
// FromMessageID — исключающая верхняя граница (0 — начиная с самого нового),
// Offset сдвигает окно в сторону более старых сообщений.
type HistoryRequest struct {
	ChatID        int64
	FromMessageID int64
	Offset        int
	Limit         int
	OnlyLocal     bool
}

var (
	// ErrNotStarted возвращается запросами, отправленными до запуска клиента.
	ErrNotStarted = errors.New("client is not started")
	// ErrChatNotFound — чат с указанным идентификатором неизвестен клиенту.
	ErrChatNotFound = errors.New("chat not found")
	// ErrEncryptedDatabase — зашифрованные локальные базы не поддерживаются.
	ErrEncryptedDatabase = errors.New("database encryption key is not supported")
	// ErrSignUpRequired — номер не зарегистрирован, а регистрация не поддерживается.
	ErrSignUpRequired = errors.New("phone number is not registered")
	// ErrUnexpectedState — запрос не соответствует текущему шагу авторизации.
	ErrUnexpectedState = errors.New("request does not match authorization state")
)
