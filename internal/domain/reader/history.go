package reader

import (
	"context"
	"iter"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/logger"
)

// HistoryPageSize — размер страницы истории за один round-trip.
const HistoryPageSize = 10

// ErrCursorNotDecreasing — клиент вернул страницу, не продвинувшую курсор в прошлое.
var ErrCursorNotDecreasing = errors.New("history cursor did not move to older messages")

// Page — страница истории: сообщения от новых к старым и курсор для следующего запроса
// (идентификатор самого старого сообщения страницы).
type Page struct {
	Messages []tdapi.Message
	Cursor   int64
}

// HistoryIterator лениво обходит историю чата от курсора в прошлое, по странице за запрос.
// Итератор не перезапускается; для продолжения с места создайте новый с сохранённым Cursor().
// Брошенный на середине итератор ничего не удерживает: клиент живёт отдельно.
//
//	it := session.History(chatID, 0)
//	for it.Next(ctx) {
//		msg := it.Value()
//	}
//	if err := it.Err(); err != nil { ... }
type HistoryIterator struct {
	client  Client
	chatID  int64
	cursor  int64
	timeout time.Duration // предел одного запроса страницы; 0 — только ctx вызывающего

	buf   []tdapi.Message
	value tdapi.Message
	pages int
	done  bool
	err   error
}

// NewHistory создаёт итератор истории. fromMessageID=0 — начать с самого нового сообщения.
func NewHistory(client Client, chatID, fromMessageID int64) *HistoryIterator {
	return &HistoryIterator{
		client: client,
		chatID: chatID,
		cursor: fromMessageID,
	}
}

// History создаёт итератор истории поверх клиента сессии.
func (s *Session) History(chatID, fromMessageID int64) *HistoryIterator {
	return NewHistory(s.client, chatID, fromMessageID)
}

// WithRequestTimeout ограничивает каждый запрос страницы временем d. Возвращает тот же итератор.
func (it *HistoryIterator) WithRequestTimeout(d time.Duration) *HistoryIterator {
	it.timeout = d
	return it
}

// Next продвигает итератор. Возвращает false по исчерпании истории или ошибке (см. Err).
func (it *HistoryIterator) Next(ctx context.Context) bool {
	if len(it.buf) == 0 {
		if it.done {
			return false
		}
		page, err := it.fetch(ctx)
		if err != nil {
			return false
		}
		it.buf = page.Messages
		if len(it.buf) == 0 {
			return false
		}
	}
	it.value = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Value возвращает текущее сообщение.
func (it *HistoryIterator) Value() tdapi.Message {
	return it.value
}

// Err возвращает ошибку, прервавшую обход.
func (it *HistoryIterator) Err() error {
	return it.err
}

// Cursor возвращает курсор следующего запроса: id самого старого полученного сообщения.
// Уже полученные, но ещё не выданные Next сообщения лежат «над» курсором.
func (it *HistoryIterator) Cursor() int64 {
	return it.cursor
}

// Pages возвращает число непустых страниц, полученных итератором.
func (it *HistoryIterator) Pages() int {
	return it.pages
}

// fetch запрашивает одну страницу старше курсора и сдвигает курсор.
// Пустая страница завершает обход.
func (it *HistoryIterator) fetch(ctx context.Context) (Page, error) {
	if it.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, it.timeout)
		defer cancel()
	}
	resp, err := it.client.GetChatHistory(ctx, tdapi.HistoryRequest{
		ChatID:        it.chatID,
		FromMessageID: it.cursor,
		Offset:        0,
		Limit:         HistoryPageSize,
		OnlyLocal:     false,
	})
	if err != nil {
		it.err = errors.Wrapf(err, "get chat history %d from %d", it.chatID, it.cursor)
		it.done = true
		return Page{}, it.err
	}
	if resp.Len() == 0 {
		logger.Debug("reader: history exhausted",
			zap.Int64("chat_id", it.chatID), zap.Int("pages", it.pages))
		it.done = true
		return Page{Cursor: it.cursor}, nil
	}

	oldest := resp.Messages[len(resp.Messages)-1].ID
	if it.cursor != 0 && oldest >= it.cursor {
		it.err = errors.Wrapf(ErrCursorNotDecreasing, "cursor %d, page oldest %d", it.cursor, oldest)
		it.done = true
		return Page{}, it.err
	}
	it.cursor = oldest
	it.pages++
	return Page{Messages: resp.Messages, Cursor: oldest}, nil
}

// StreamMessages отдаёт историю чата как ленивую последовательность.
// Каждая страница запрашивается только когда потребитель дочитал предыдущую;
// выход из range на середине безопасен. Ошибка выдаётся последним элементом.
func (s *Session) StreamMessages(ctx context.Context, chatID, fromMessageID int64) iter.Seq2[tdapi.Message, error] {
	return func(yield func(tdapi.Message, error) bool) {
		it := s.History(chatID, fromMessageID)
		for it.Next(ctx) {
			if !yield(it.Value(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(tdapi.Message{}, err)
		}
	}
}

// StreamPages отдаёт историю постранично вместе с курсорами продолжения.
func (s *Session) StreamPages(ctx context.Context, chatID, fromMessageID int64) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		it := s.History(chatID, fromMessageID)
		for {
			page, err := it.fetch(ctx)
			if err != nil {
				yield(Page{}, err)
				return
			}
			if len(page.Messages) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}
