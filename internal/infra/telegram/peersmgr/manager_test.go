package peersmgr

import (
	"context"
	"testing"

	"github.com/gotd/td/constant"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/tg"
	"github.com/kr/pretty"
)

func sampleDialogs() *tg.MessagesDialogsSlice {
	return &tg.MessagesDialogsSlice{
		Count: 4,
		Dialogs: []tg.DialogClass{
			&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 500}, TopMessage: 9},
			&tg.DialogFolder{Peer: &tg.PeerChannel{ChannelID: 1}, Folder: tg.Folder{ID: 1, Title: "Archive"}},
			&tg.Dialog{Peer: &tg.PeerUser{UserID: 10}, TopMessage: 8},
			&tg.Dialog{Peer: &tg.PeerChat{ChatID: 77}, TopMessage: 7},
		},
		Users: []tg.UserClass{
			&tg.User{ID: 10, AccessHash: 1010, FirstName: "Ann", LastName: "Lee"},
		},
		Chats: []tg.ChatClass{
			&tg.Channel{ID: 500, AccessHash: 5005, Title: "News", Megagroup: true},
			&tg.Chat{ID: 77, Title: "Family"},
		},
	}
}

func tdlib(kind string, id int64) int64 {
	var p constant.TDLibPeerID
	switch kind {
	case "user":
		p.User(id)
	case "chat":
		p.Chat(id)
	case "channel":
		p.Channel(id)
	}
	return int64(p)
}

func TestTDLibID(t *testing.T) {
	tests := []struct {
		name string
		peer tg.PeerClass
		want int64
		ok   bool
	}{
		{name: "пользователь", peer: &tg.PeerUser{UserID: 10}, want: 10, ok: true},
		{name: "группа", peer: &tg.PeerChat{ChatID: 77}, want: -77, ok: true},
		{name: "канал", peer: &tg.PeerChannel{ChannelID: 500}, want: -1000000000500, ok: true},
		{name: "nil", peer: nil, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TDLibID(tt.peer)
			if ok != tt.ok || int64(got) != tt.want {
				t.Errorf("TDLibID() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFetchDialogs_OrderAndSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	inv := &fakeInvoker{dialogs: sampleDialogs()}

	svc, err := New(tg.NewClient(inv), db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := svc.FetchDialogs(ctx, 100)
	if err != nil {
		t.Fatalf("FetchDialogs() error = %v", err)
	}
	want := []int64{tdlib("channel", 500), tdlib("user", 10), tdlib("chat", 77)}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Fatalf("FetchDialogs() diff: %v", diff)
	}

	// Снимок переживает пересоздание сервиса поверх той же базы.
	reopened, err := New(tg.NewClient(&fakeInvoker{}), db)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	if diff := pretty.Diff(reopened.Dialogs(), want); len(diff) > 0 {
		t.Fatalf("Dialogs() after reopen diff: %v", diff)
	}
	if err := reopened.LoadFromStorage(ctx); err != nil {
		t.Fatalf("LoadFromStorage() error = %v", err)
	}
}

func TestFetchDialogs_Limit(t *testing.T) {
	svc, err := New(tg.NewClient(&fakeInvoker{dialogs: sampleDialogs()}), openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.FetchDialogs(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchDialogs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FetchDialogs(limit=2) = %v", got)
	}
}

func TestFetchDialogs_NotModifiedServesSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	inv := &fakeInvoker{dialogs: sampleDialogs()}
	svc, err := New(tg.NewClient(inv), db)
	if err != nil {
		t.Fatal(err)
	}
	first, err := svc.FetchDialogs(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}

	inv.mu.Lock()
	inv.dialogs = &tg.MessagesDialogsNotModified{Count: 3}
	inv.mu.Unlock()

	second, err := svc.FetchDialogs(ctx, 100)
	if err != nil {
		t.Fatalf("FetchDialogs() error = %v", err)
	}
	if diff := pretty.Diff(second, first); len(diff) > 0 {
		t.Fatalf("not-modified diff: %v", diff)
	}
}

func TestResolvePeer(t *testing.T) {
	ctx := context.Background()
	dlg := sampleDialogs()
	inv := &fakeInvoker{dialogs: dlg, users: dlg.Users, chats: dlg.Chats}
	svc, err := New(tg.NewClient(inv), openTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FetchDialogs(ctx, 100); err != nil {
		t.Fatal(err)
	}

	peer, ok, err := svc.ResolvePeer(ctx, constant.TDLibPeerID(tdlib("channel", 500)))
	if err != nil || !ok {
		t.Fatalf("ResolvePeer(channel) = %v, %v", ok, err)
	}
	channel, isChannel := peer.(peers.Channel)
	if !isChannel || channel.Raw().Title != "News" {
		t.Fatalf("ResolvePeer(channel) = %#v", peer)
	}

	peer, ok, err = svc.ResolvePeer(ctx, constant.TDLibPeerID(tdlib("chat", 77)))
	if err != nil || !ok {
		t.Fatalf("ResolvePeer(chat) = %v, %v", ok, err)
	}
	if chat, isChat := peer.(peers.Chat); !isChat || chat.Raw().Title != "Family" {
		t.Fatalf("ResolvePeer(chat) = %#v", peer)
	}

	input, ok, err := svc.InputPeer(ctx, constant.TDLibPeerID(tdlib("user", 10)))
	if err != nil || !ok {
		t.Fatalf("InputPeer(user) = %v, %v", ok, err)
	}
	if u, isUser := input.(*tg.InputPeerUser); !isUser || u.UserID != 10 || u.AccessHash != 1010 {
		t.Fatalf("InputPeer(user) = %#v", input)
	}
}

func TestNew_RejectsNil(t *testing.T) {
	if _, err := New(nil, openTestDB(t)); err == nil {
		t.Error("New(nil api) must fail")
	}
	if _, err := New(tg.NewClient(&fakeInvoker{}), nil); err == nil {
		t.Error("New(nil db) must fail")
	}
}
