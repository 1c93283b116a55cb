package gotdclient

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"telegram-reader/internal/adapters/telegram/tdapi"
)

const (
	testCode     = "12345"
	testCodeHash = "hash-1"
)

// fakeTelegram — сервер Telegram в памяти: отвечает на RPC, нужные клиенту.
type fakeTelegram struct {
	mu sync.Mutex

	authorized   bool
	needPassword bool
	// codeSuccess — sendCode сразу авторизует (future auth token), без ввода кода.
	codeSuccess bool
	statusErr    error
	self         *tg.User

	dialogs []tg.DialogClass
	users   []tg.UserClass
	chats   []tg.ChatClass
	// history — сообщения по TDLib-идентификатору чата, в порядке возрастания id.
	history map[int64][]tg.MessageClass

	historyCalls []tg.MessagesGetHistoryRequest
	sentPhone    string
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{
		self:    &tg.User{ID: 1, FirstName: "Reader", Username: "reader", Phone: "100", Self: true},
		history: map[int64][]tg.MessageClass{},
	}
}

func (f *fakeTelegram) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	resp, err := f.handle(input)
	if err != nil {
		return err
	}
	var buf bin.Buffer
	if err := resp.Encode(&buf); err != nil {
		return err
	}
	return output.Decode(&buf)
}

func (f *fakeTelegram) handle(input bin.Encoder) (bin.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req := input.(type) {
	case *tg.UsersGetUsersRequest:
		for _, id := range req.ID {
			if _, ok := id.(*tg.InputUserSelf); ok {
				if err := f.selfErr(); err != nil {
					return nil, err
				}
				return &tg.UserClassVector{Elems: []tg.UserClass{f.self}}, nil
			}
		}
		return &tg.UserClassVector{Elems: f.users}, nil
	case *tg.AuthSendCodeRequest:
		f.sentPhone = req.PhoneNumber
		if f.codeSuccess {
			f.authorized = true
			return &tg.AuthSentCodeSuccess{Authorization: &tg.AuthAuthorization{User: f.self}}, nil
		}
		return &tg.AuthSentCode{Type: &tg.AuthSentCodeTypeApp{Length: len(testCode)}, PhoneCodeHash: testCodeHash}, nil
	case *tg.AuthSignInRequest:
		if req.PhoneCodeHash != testCodeHash || req.PhoneCode != testCode {
			return nil, tgerr.New(400, "PHONE_CODE_INVALID")
		}
		if f.needPassword {
			return nil, tgerr.New(401, "SESSION_PASSWORD_NEEDED")
		}
		f.authorized = true
		return &tg.AuthAuthorization{User: f.self}, nil
	case *tg.AccountGetPasswordRequest:
		return nil, tgerr.New(400, "PASSWORD_UNAVAILABLE")
	case *tg.MessagesGetDialogsRequest:
		return &tg.MessagesDialogs{Dialogs: f.dialogs, Users: f.users, Chats: f.chats}, nil
	case *tg.MessagesGetChatsRequest, *tg.ChannelsGetChannelsRequest:
		return &tg.MessagesChats{Chats: f.chats}, nil
	case *tg.MessagesGetHistoryRequest:
		f.historyCalls = append(f.historyCalls, *req)
		return f.historyPage(req), nil
	default:
		return nil, fmt.Errorf("unexpected request %T", input)
	}
}

func (f *fakeTelegram) selfErr() error {
	if f.statusErr != nil {
		return f.statusErr
	}
	if !f.authorized {
		return tgerr.New(401, "AUTH_KEY_UNREGISTERED")
	}
	return nil
}

// historyPage повторяет семантику messages.getHistory: строго старше offset_id,
// add_offset пропускает более новые, ответ от новых к старым.
func (f *fakeTelegram) historyPage(req *tg.MessagesGetHistoryRequest) *tg.MessagesMessages {
	chatID := inputPeerTDLib(req.Peer)
	all := f.history[chatID]
	var older []tg.MessageClass
	for i := len(all) - 1; i >= 0; i-- {
		if req.OffsetID == 0 || all[i].GetID() < req.OffsetID {
			older = append(older, all[i])
		}
	}
	if req.AddOffset > 0 {
		older = older[min(req.AddOffset, len(older)):]
	}
	if len(older) > req.Limit {
		older = older[:req.Limit]
	}
	return &tg.MessagesMessages{Messages: older, Users: f.users, Chats: f.chats}
}

func inputPeerTDLib(p tg.InputPeerClass) int64 {
	switch v := p.(type) {
	case *tg.InputPeerUser:
		return v.UserID
	case *tg.InputPeerChat:
		return -v.ChatID
	case *tg.InputPeerChannel:
		return -1000000000000 - v.ChannelID
	default:
		return 0
	}
}

// addPrivate, addGroup и addChannel регистрируют диалоги в порядке вызова.
func (f *fakeTelegram) addPrivate(id int64, first, last string) {
	f.users = append(f.users, &tg.User{ID: id, AccessHash: id * 10, FirstName: first, LastName: last})
	f.dialogs = append(f.dialogs, &tg.Dialog{Peer: &tg.PeerUser{UserID: id}})
}

func (f *fakeTelegram) addGroup(id int64, title string) {
	f.chats = append(f.chats, &tg.Chat{ID: id, Title: title, Photo: &tg.ChatPhotoEmpty{}})
	f.dialogs = append(f.dialogs, &tg.Dialog{Peer: &tg.PeerChat{ChatID: id}})
}

func (f *fakeTelegram) addChannel(id int64, title string, broadcast bool) {
	f.chats = append(f.chats, &tg.Channel{ID: id, AccessHash: id * 10, Title: title, Photo: &tg.ChatPhotoEmpty{}, Broadcast: broadcast, Megagroup: !broadcast})
	f.dialogs = append(f.dialogs, &tg.Dialog{Peer: &tg.PeerChannel{ChannelID: id}})
}

// fillHistory добавляет в чат n сообщений с id 1..n.
func (f *fakeTelegram) fillHistory(chatID int64, peer tg.PeerClass, n int) {
	msgs := make([]tg.MessageClass, 0, n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, &tg.Message{
			ID:      i,
			PeerID:  peer,
			Date:    1700000000 + i*60,
			Message: fmt.Sprintf("message %d", i),
		})
	}
	f.history[chatID] = msgs
}

// deleteHistory заменяет сообщения с id из [from, to] на MessageEmpty.
func (f *fakeTelegram) deleteHistory(chatID int64, from, to int) {
	for i, m := range f.history[chatID] {
		if id := m.GetID(); id >= from && id <= to {
			f.history[chatID][i] = &tg.MessageEmpty{ID: id}
		}
	}
}

func (f *fakeTelegram) historyRequests() []tg.MessagesGetHistoryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tg.MessagesGetHistoryRequest(nil), f.historyCalls...)
}

// fakeEngine держит «соединение» без сети: Run просто выполняет f.
type fakeEngine struct {
	api  *tg.Client
	auth *auth.Client
}

func (e *fakeEngine) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return f(ctx)
}

func (e *fakeEngine) API() *tg.Client    { return e.api }
func (e *fakeEngine) Auth() *auth.Client { return e.auth }

func newTestClient(t *testing.T, srv *fakeTelegram) *Client {
	t.Helper()
	return newTestClientWith(t, fakeEngineFactory(srv))
}

func newTestClientWith(t *testing.T, factory EngineFactory) *Client {
	t.Helper()
	c := New(Options{
		DatabaseFile: t.TempDir() + "/reader.bbolt",
		NoUpdates:    true,
		NewEngine:    factory,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func fakeEngineFactory(srv *fakeTelegram) EngineFactory {
	return func(params tdapi.Parameters, _ telegram.UpdateHandler) (Engine, error) {
		api := tg.NewClient(srv)
		return &fakeEngine{api: api, auth: auth.NewClient(api, rand.Reader, params.APIID, params.APIHash)}, nil
	}
}

// recorder запоминает доставленные апдейты.
type recorder struct {
	mu      sync.Mutex
	updates []tdapi.Update
}

func (r *recorder) handle(u tdapi.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) snapshot() []tdapi.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tdapi.Update(nil), r.updates...)
}
