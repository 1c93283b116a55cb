package reader

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/logger"
)

// ChatListLimit — сколько чатов запрашивается у клиента. Чаты за пределами
// первой сотни резолверу не видны: пагинации списка чатов нет.
const ChatListLimit = 100

// ResolveChatID ищет чат по точному совпадению названия среди личных чатов,
// обычных групп и супергрупп. Побеждает первый найденный в порядке списка.
// Если ничего не нашлось, возвращает (0, false, nil): это не ошибка.
func (s *Session) ResolveChatID(ctx context.Context, name string) (int64, bool, error) {
	ids, err := s.client.GetChats(ctx, ChatListLimit)
	if err != nil {
		return 0, false, errors.Wrap(err, "get chats")
	}

	// Детали чатов запрашиваются последовательно: список ограничен сотней.
	for _, id := range ids {
		chat, chatErr := s.client.GetChat(ctx, id)
		if chatErr != nil {
			return 0, false, errors.Wrapf(chatErr, "get chat %d", id)
		}
		if !eligible(chat.Kind) {
			continue
		}
		if chat.Title == name {
			logger.Debug("reader: chat resolved", zap.String("title", name), zap.Int64("chat_id", chat.ID))
			return chat.ID, true, nil
		}
	}

	logger.Debug("reader: chat not found", zap.String("title", name), zap.Int("scanned", len(ids)))
	return 0, false, nil
}

// ListChats возвращает сводки первых ChatListLimit чатов в порядке клиента.
func (s *Session) ListChats(ctx context.Context) ([]tdapi.Chat, error) {
	ids, err := s.client.GetChats(ctx, ChatListLimit)
	if err != nil {
		return nil, errors.Wrap(err, "get chats")
	}
	result := make([]tdapi.Chat, 0, len(ids))
	for _, id := range ids {
		chat, chatErr := s.client.GetChat(ctx, id)
		if chatErr != nil {
			return nil, errors.Wrapf(chatErr, "get chat %d", id)
		}
		result = append(result, *chat)
	}
	return result, nil
}

func eligible(kind tdapi.ChatKind) bool {
	switch kind {
	case tdapi.ChatKindPrivate, tdapi.ChatKindBasicGroup, tdapi.ChatKindSupergroup:
		return true
	default:
		return false
	}
}
