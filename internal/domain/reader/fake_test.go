package reader_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-reader/internal/adapters/telegram/tdapi"
)

// fakeClient — управляемая подмена внешнего клиента. Записывает все запросы.
type fakeClient struct {
	mu sync.Mutex

	params     []tdapi.Parameters
	keys       [][]byte
	phones     []string
	codes      []string
	passwords  []string
	historyLog []tdapi.HistoryRequest
	chatsLimit []int
	chatCalls  []int64
	closed     int

	bootstrapped chan string // имя каждого фонового вызова

	setParamsErr error
	onPhone      func(phone string) error
	onCode       func(code string) error
	onPassword   func(password string) error
	historyErr   error

	me       tdapi.User
	chatIDs  []int64
	chats    map[int64]tdapi.Chat
	messages map[int64][]tdapi.Message // chatID -> сообщения в любом порядке
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		bootstrapped: make(chan string, 16),
		chats:        make(map[int64]tdapi.Chat),
		messages:     make(map[int64][]tdapi.Message),
	}
}

func (f *fakeClient) SetParameters(_ context.Context, params tdapi.Parameters) error {
	f.mu.Lock()
	f.params = append(f.params, params)
	err := f.setParamsErr
	f.mu.Unlock()
	f.notify("parameters")
	return err
}

func (f *fakeClient) CheckDatabaseEncryptionKey(_ context.Context, key []byte) error {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	f.notify("encryption_key")
	return nil
}

func (f *fakeClient) SetAuthenticationPhoneNumber(_ context.Context, phone string) error {
	f.mu.Lock()
	f.phones = append(f.phones, phone)
	hook := f.onPhone
	f.mu.Unlock()
	if hook != nil {
		return hook(phone)
	}
	return nil
}

func (f *fakeClient) CheckAuthenticationCode(_ context.Context, code string) error {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	hook := f.onCode
	f.mu.Unlock()
	if hook != nil {
		return hook(code)
	}
	return nil
}

func (f *fakeClient) CheckAuthenticationPassword(_ context.Context, password string) error {
	f.mu.Lock()
	f.passwords = append(f.passwords, password)
	hook := f.onPassword
	f.mu.Unlock()
	if hook != nil {
		return hook(password)
	}
	return nil
}

func (f *fakeClient) GetMe(_ context.Context) (*tdapi.User, error) {
	me := f.me
	return &me, nil
}

func (f *fakeClient) GetChats(_ context.Context, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatsLimit = append(f.chatsLimit, limit)
	ids := f.chatIDs
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]int64(nil), ids...), nil
}

func (f *fakeClient) GetChat(_ context.Context, chatID int64) (*tdapi.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls = append(f.chatCalls, chatID)
	chat, ok := f.chats[chatID]
	if !ok {
		return nil, tdapi.ErrChatNotFound
	}
	return &chat, nil
}

func (f *fakeClient) GetChatHistory(_ context.Context, req tdapi.HistoryRequest) (*tdapi.Messages, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyLog = append(f.historyLog, req)
	if f.historyErr != nil {
		return nil, f.historyErr
	}

	all := append([]tdapi.Message(nil), f.messages[req.ChatID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	older := make([]tdapi.Message, 0, len(all))
	for _, m := range all {
		if req.FromMessageID == 0 || m.ID < req.FromMessageID {
			older = append(older, m)
		}
	}
	if req.Offset > 0 {
		if req.Offset >= len(older) {
			older = nil
		} else {
			older = older[req.Offset:]
		}
	}
	if len(older) > req.Limit {
		older = older[:req.Limit]
	}
	return &tdapi.Messages{Messages: older}, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeClient) notify(name string) {
	select {
	case f.bootstrapped <- name:
	default:
	}
}

// seedChat заполняет чат сообщениями с id 1..n (n — самое новое).
func (f *fakeClient) seedChat(chatID int64, n int) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := make([]tdapi.Message, 0, n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, tdapi.Message{
			ID:     int64(i),
			ChatID: chatID,
			Date:   base.Add(time.Duration(i) * time.Minute),
			Text:   "message",
		})
	}
	f.messages[chatID] = msgs
}

func (f *fakeClient) addChat(chat tdapi.Chat) {
	f.chatIDs = append(f.chatIDs, chat.ID)
	f.chats[chat.ID] = chat
}

func (f *fakeClient) history() []tdapi.HistoryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tdapi.HistoryRequest(nil), f.historyLog...)
}
