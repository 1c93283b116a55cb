package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/domain/reader"
	"telegram-reader/internal/domain/search"
	"telegram-reader/internal/infra/storage"
)

// timeLayout — формат даты сообщения в выводе консоли (локальное время процесса).
const timeLayout = "2006-01-02 15:04"

// FormatChat печатает сводку о чате одной строкой.
func FormatChat(c tdapi.Chat) string {
	title := c.Title
	if title == "" {
		title = "<untitled>"
	}
	return fmt.Sprintf("%s: '%s' id: %d", c.Kind, title, c.ID)
}

// FormatMessage печатает сообщение одной строкой: дата, id, отправитель и текст.
// Переводы строк в тексте заменяются на пробелы.
func FormatMessage(m tdapi.Message) string {
	text := strings.Join(strings.Fields(m.Text), " ")
	switch {
	case m.Service:
		text = "<service message>"
	case text == "":
		text = "<no text>"
	}
	direction := "<-"
	if m.Outgoing {
		direction = "->"
	}
	return fmt.Sprintf("[%s] #%d %s %d: %s", m.Date.Local().Format(timeLayout), m.ID, direction, m.SenderID, text)
}

// Grep обходит историю до конца и передаёт в found сообщения, текст которых
// содержит шаблон. Возвращает число совпадений.
func Grep(ctx context.Context, it *reader.HistoryIterator, m search.Matcher, found func(tdapi.Message)) (int, error) {
	n := 0
	for it.Next(ctx) {
		msg := it.Value()
		if msg.Service || !m.Match(msg.Text) {
			continue
		}
		found(msg)
		n++
	}
	return n, it.Err()
}

// Export выгружает всю историю итератора в path как JSON lines (от новых к старым).
// Файл заменяется атомарно и только при успешном обходе.
func Export(ctx context.Context, it *reader.HistoryIterator, path string) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	n := 0
	for it.Next(ctx) {
		if err := enc.Encode(it.Value()); err != nil {
			return n, errors.Wrap(err, "encode message")
		}
		n++
	}
	if err := it.Err(); err != nil {
		return n, err
	}
	if err := storage.AtomicWriteFile(path, buf.Bytes()); err != nil {
		return n, errors.Wrapf(err, "write %s", path)
	}
	return n, nil
}
