package reader_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kr/pretty"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/domain/reader"
)

const testChatID = -1000000000777

func ids(msgs []tdapi.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func collect(t *testing.T, s *reader.Session, chatID, from int64) []tdapi.Message {
	t.Helper()
	var out []tdapi.Message
	for msg, err := range s.StreamMessages(context.Background(), chatID, from) {
		if err != nil {
			t.Fatalf("StreamMessages() error = %v", err)
		}
		out = append(out, msg)
	}
	return out
}

func TestStreamPages_TwentyThreeMessages(t *testing.T) {
	f := newFakeClient()
	f.seedChat(testChatID, 23)
	s := reader.NewSession(f, testIdentity(), nil)

	var sizes []int
	var cursors []int64
	for page, err := range s.StreamPages(context.Background(), testChatID, 0) {
		if err != nil {
			t.Fatalf("StreamPages() error = %v", err)
		}
		sizes = append(sizes, len(page.Messages))
		cursors = append(cursors, page.Cursor)
	}

	if diff := pretty.Diff(sizes, []int{10, 10, 3}); len(diff) > 0 {
		t.Fatalf("page sizes differ: %v", diff)
	}
	// После первой страницы курсор — десятое сообщение от самого нового (id 14).
	if diff := pretty.Diff(cursors, []int64{14, 4, 1}); len(diff) > 0 {
		t.Fatalf("cursors differ: %v", diff)
	}

	reqs := f.history()
	wantFrom := []int64{0, 14, 4, 1}
	if len(reqs) != len(wantFrom) {
		t.Fatalf("history requests = %d, want %d", len(reqs), len(wantFrom))
	}
	for i, req := range reqs {
		want := tdapi.HistoryRequest{
			ChatID:        testChatID,
			FromMessageID: wantFrom[i],
			Offset:        0,
			Limit:         reader.HistoryPageSize,
			OnlyLocal:     false,
		}
		if req != want {
			t.Errorf("request %d = %+v, want %+v", i, req, want)
		}
	}
}

func TestHistoryIterator_YieldsAllNewestFirst(t *testing.T) {
	f := newFakeClient()
	f.seedChat(testChatID, 23)
	s := reader.NewSession(f, testIdentity(), nil)

	it := s.History(testChatID, 0)
	var got []int64
	for it.Next(context.Background()) {
		got = append(got, it.Value().ID)
		if len(got) == 10 && it.Cursor() != 14 {
			t.Fatalf("Cursor() after first page = %d, want 14", it.Cursor())
		}
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	want := make([]int64, 0, 23)
	for id := int64(23); id >= 1; id-- {
		want = append(want, id)
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Fatalf("ids differ: %v", diff)
	}
	if it.Pages() != 3 {
		t.Errorf("Pages() = %d, want 3", it.Pages())
	}
}

func TestStreamMessages_ResumeFromCursor(t *testing.T) {
	f := newFakeClient()
	f.seedChat(testChatID, 57)
	s := reader.NewSession(f, testIdentity(), nil)

	full := collect(t, s, testChatID, 0)

	// Дочитываем три страницы и запоминаем курсор.
	it := s.History(testChatID, 0)
	for range 3 * reader.HistoryPageSize {
		if !it.Next(context.Background()) {
			t.Fatalf("history ended early: %v", it.Err())
		}
	}
	cursor := it.Cursor()

	resumed := collect(t, s, testChatID, cursor)
	trailing := full[3*reader.HistoryPageSize:]
	if diff := pretty.Diff(ids(resumed), ids(trailing)); len(diff) > 0 {
		t.Fatalf("resumed tail differs: %v", diff)
	}
}

func TestStreamMessages_EarlyBreakFetchesOnePage(t *testing.T) {
	f := newFakeClient()
	f.seedChat(testChatID, 100)
	s := reader.NewSession(f, testIdentity(), nil)

	n := 0
	for _, err := range s.StreamMessages(context.Background(), testChatID, 0) {
		if err != nil {
			t.Fatalf("StreamMessages() error = %v", err)
		}
		n++
		if n == 5 {
			break
		}
	}
	if got := len(f.history()); got != 1 {
		t.Fatalf("history requests = %d, want 1", got)
	}
}

func TestStreamMessages_EmptyChat(t *testing.T) {
	f := newFakeClient()
	s := reader.NewSession(f, testIdentity(), nil)

	if got := collect(t, s, testChatID, 0); len(got) != 0 {
		t.Fatalf("got %d messages from empty chat", len(got))
	}
	if got := len(f.history()); got != 1 {
		t.Fatalf("history requests = %d, want 1", got)
	}
}

func TestStreamMessages_ErrorIsYielded(t *testing.T) {
	errFlood := errors.New("FLOOD_WAIT_3")
	f := newFakeClient()
	f.historyErr = errFlood
	s := reader.NewSession(f, testIdentity(), nil)

	var gotErr error
	for _, err := range s.StreamMessages(context.Background(), testChatID, 0) {
		gotErr = err
	}
	if !errors.Is(gotErr, errFlood) {
		t.Fatalf("StreamMessages() error = %v, want %v", gotErr, errFlood)
	}
}

// stuckClient всегда возвращает одну и ту же страницу, не сдвигая курсор.
type stuckClient struct {
	*fakeClient
}

func (c stuckClient) GetChatHistory(context.Context, tdapi.HistoryRequest) (*tdapi.Messages, error) {
	return &tdapi.Messages{Messages: []tdapi.Message{{ID: 9}, {ID: 8}}}, nil
}

func TestHistoryIterator_CursorMustDecrease(t *testing.T) {
	it := reader.NewHistory(stuckClient{newFakeClient()}, testChatID, 0)
	n := 0
	for it.Next(context.Background()) {
		n++
		if n > 10 {
			t.Fatal("iterator did not stop on a stalled cursor")
		}
	}
	if !errors.Is(it.Err(), reader.ErrCursorNotDecreasing) {
		t.Fatalf("Err() = %v, want %v", it.Err(), reader.ErrCursorNotDecreasing)
	}
	if n != 2 {
		t.Fatalf("yielded %d messages, want 2", n)
	}
}
