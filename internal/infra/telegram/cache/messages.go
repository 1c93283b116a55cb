// Package cache — локальный кэш сообщений поверх bbolt. Сюда пишутся все страницы
// истории, полученные из сети, и новые сообщения из апдейтов; из кэша
// обслуживаются запросы истории с onlyLocal.
//
// Раскладка: корневой bucket "messages" → вложенный bucket на чат (ключ — chat id,
// 8 байт big-endian) → ключ message id (8 байт big-endian), значение — JSON сообщения.
// Порядок ключей совпадает с хронологией, поэтому обход назад идёт курсором Prev.
package cache

import (
	"encoding/binary"
	"encoding/json"

	"github.com/go-faster/errors"
	"go.etcd.io/bbolt"

	"telegram-reader/internal/adapters/telegram/tdapi"
)

var messagesBucket = []byte("messages")

// ErrNegativeOffset — локальный кэш не отдаёт сообщения новее курсора.
var ErrNegativeOffset = errors.New("negative offset is not supported by local cache")

// Messages хранит сообщения чатов в общей bbolt-базе.
type Messages struct {
	db *bbolt.DB
}

// NewMessages создаёт корневой bucket при необходимости.
func NewMessages(db *bbolt.DB) (*Messages, error) {
	if db == nil {
		return nil, errors.New("cache: db is nil")
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "create messages bucket")
	}
	return &Messages{db: db}, nil
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Put сохраняет сообщения. Повторная запись того же id перезаписывает значение.
func (c *Messages) Put(msgs ...tdapi.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(messagesBucket)
		for _, msg := range msgs {
			if msg.ID <= 0 {
				continue
			}
			chat, err := root.CreateBucketIfNotExists(itob(msg.ChatID))
			if err != nil {
				return errors.Wrapf(err, "chat bucket %d", msg.ChatID)
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				return errors.Wrapf(err, "encode message %d", msg.ID)
			}
			if err := chat.Put(itob(msg.ID), payload); err != nil {
				return errors.Wrapf(err, "put message %d", msg.ID)
			}
		}
		return nil
	})
}

// Range возвращает до limit сообщений чата строго старше from (from=0 — с самого
// нового), пропустив offset более новых. Порядок — от новых к старым.
func (c *Messages) Range(chatID, from int64, offset, limit int) ([]tdapi.Message, error) {
	if offset < 0 {
		return nil, ErrNegativeOffset
	}
	if limit <= 0 {
		return nil, nil
	}
	var out []tdapi.Message
	err := c.db.View(func(tx *bbolt.Tx) error {
		chat := tx.Bucket(messagesBucket).Bucket(itob(chatID))
		if chat == nil {
			return nil
		}
		cur := chat.Cursor()
		k, v := seekBefore(cur, from)
		for skip := offset; k != nil && skip > 0; skip-- {
			k, v = cur.Prev()
		}
		for ; k != nil && len(out) < limit; k, v = cur.Prev() {
			var msg tdapi.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return errors.Wrapf(err, "decode message %d", int64(binary.BigEndian.Uint64(k)))
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// seekBefore ставит курсор на самое новое сообщение с id < from.
func seekBefore(cur *bbolt.Cursor, from int64) ([]byte, []byte) {
	if from <= 0 {
		return cur.Last()
	}
	k, _ := cur.Seek(itob(from))
	if k == nil {
		return cur.Last()
	}
	return cur.Prev()
}
