package reader_test

import (
	"context"
	"errors"
	"testing"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/domain/reader"
)

func TestResolveChatID(t *testing.T) {
	tests := []struct {
		name   string
		chats  []tdapi.Chat
		query  string
		wantID int64
		wantOK bool
	}{
		{
			name: "личный чат",
			chats: []tdapi.Chat{
				{ID: 10, Title: "Alice", Kind: tdapi.ChatKindPrivate},
			},
			query:  "Alice",
			wantID: 10,
			wantOK: true,
		},
		{
			name: "супергруппа после обычной группы с другим названием",
			chats: []tdapi.Chat{
				{ID: -20, Title: "Work", Kind: tdapi.ChatKindBasicGroup},
				{ID: -1000000000030, Title: "News", Kind: tdapi.ChatKindSupergroup},
			},
			query:  "News",
			wantID: -1000000000030,
			wantOK: true,
		},
		{
			name: "первое совпадение побеждает",
			chats: []tdapi.Chat{
				{ID: -21, Title: "Dup", Kind: tdapi.ChatKindBasicGroup},
				{ID: 22, Title: "Dup", Kind: tdapi.ChatKindPrivate},
			},
			query:  "Dup",
			wantID: -21,
			wantOK: true,
		},
		{
			name: "чат неподходящего типа с тем же названием не находится",
			chats: []tdapi.Chat{
				{ID: 40, Title: "Secret", Kind: tdapi.ChatKindOther},
			},
			query:  "Secret",
			wantID: 0,
			wantOK: false,
		},
		{
			name: "неподходящий тип пропускается, подходящий находится",
			chats: []tdapi.Chat{
				{ID: 41, Title: "Mixed", Kind: tdapi.ChatKindOther},
				{ID: 42, Title: "Mixed", Kind: tdapi.ChatKindPrivate},
			},
			query:  "Mixed",
			wantID: 42,
			wantOK: true,
		},
		{
			name: "регистр имеет значение",
			chats: []tdapi.Chat{
				{ID: 50, Title: "alice", Kind: tdapi.ChatKindPrivate},
			},
			query:  "Alice",
			wantOK: false,
		},
		{
			name:   "пустой список",
			query:  "Anyone",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeClient()
			for _, c := range tt.chats {
				f.addChat(c)
			}
			s := reader.NewSession(f, testIdentity(), nil)

			id, ok, err := s.ResolveChatID(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("ResolveChatID() error = %v", err)
			}
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("ResolveChatID() = (%d, %v), want (%d, %v)", id, ok, tt.wantID, tt.wantOK)
			}
			if len(f.chatsLimit) != 1 || f.chatsLimit[0] != reader.ChatListLimit {
				t.Errorf("GetChats limits = %v, want [%d]", f.chatsLimit, reader.ChatListLimit)
			}
		})
	}
}

func TestResolveChatID_ChatsBeyondLimitAreInvisible(t *testing.T) {
	f := newFakeClient()
	for i := range reader.ChatListLimit {
		f.addChat(tdapi.Chat{ID: int64(i + 1), Title: "filler", Kind: tdapi.ChatKindPrivate})
	}
	f.addChat(tdapi.Chat{ID: 1000, Title: "Late", Kind: tdapi.ChatKindPrivate})
	s := reader.NewSession(f, testIdentity(), nil)

	_, ok, err := s.ResolveChatID(context.Background(), "Late")
	if err != nil {
		t.Fatalf("ResolveChatID() error = %v", err)
	}
	if ok {
		t.Fatal("chat beyond the list limit must not be resolved")
	}
	if len(f.chatCalls) != reader.ChatListLimit {
		t.Errorf("GetChat calls = %d, want %d", len(f.chatCalls), reader.ChatListLimit)
	}
}

func TestResolveChatID_StopsAtFirstMatch(t *testing.T) {
	f := newFakeClient()
	f.addChat(tdapi.Chat{ID: 1, Title: "Target", Kind: tdapi.ChatKindPrivate})
	f.addChat(tdapi.Chat{ID: 2, Title: "Other", Kind: tdapi.ChatKindPrivate})
	s := reader.NewSession(f, testIdentity(), nil)

	if _, _, err := s.ResolveChatID(context.Background(), "Target"); err != nil {
		t.Fatalf("ResolveChatID() error = %v", err)
	}
	if len(f.chatCalls) != 1 {
		t.Errorf("GetChat calls = %v, want only the first chat", f.chatCalls)
	}
}

func TestResolveChatID_GetChatErrorPropagates(t *testing.T) {
	f := newFakeClient()
	f.chatIDs = []int64{404}
	s := reader.NewSession(f, testIdentity(), nil)

	_, ok, err := s.ResolveChatID(context.Background(), "Ghost")
	if !errors.Is(err, tdapi.ErrChatNotFound) {
		t.Fatalf("ResolveChatID() error = %v, want %v", err, tdapi.ErrChatNotFound)
	}
	if ok {
		t.Fatal("ok must be false on error")
	}
}

func TestListChats(t *testing.T) {
	f := newFakeClient()
	f.addChat(tdapi.Chat{ID: 1, Title: "A", Kind: tdapi.ChatKindPrivate})
	f.addChat(tdapi.Chat{ID: 2, Title: "B", Kind: tdapi.ChatKindOther})
	s := reader.NewSession(f, testIdentity(), nil)

	chats, err := s.ListChats(context.Background())
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if len(chats) != 2 || chats[0].Title != "A" || chats[1].Kind != tdapi.ChatKindOther {
		t.Fatalf("ListChats() = %+v", chats)
	}
}
