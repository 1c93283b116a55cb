package peersmgr

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"
)

// fakeInvoker отвечает на RPC заранее заданными объектами и записывает запросы.
type fakeInvoker struct {
	mu       sync.Mutex
	dialogs  tg.MessagesDialogsClass
	users    []tg.UserClass
	chats    []tg.ChatClass
	requests []bin.Encoder
}

func (f *fakeInvoker) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, input)

	var resp bin.Encoder
	switch input.(type) {
	case *tg.MessagesGetDialogsRequest:
		resp = f.dialogs
	case *tg.UsersGetUsersRequest:
		resp = &tg.UserClassVector{Elems: f.users}
	case *tg.MessagesGetChatsRequest, *tg.ChannelsGetChannelsRequest:
		resp = &tg.MessagesChats{Chats: f.chats}
	default:
		return fmt.Errorf("unexpected request %T", input)
	}

	var buf bin.Buffer
	if err := resp.Encode(&buf); err != nil {
		return err
	}
	return output.Decode(&buf)
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "peers.bbolt"), 0o600, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
