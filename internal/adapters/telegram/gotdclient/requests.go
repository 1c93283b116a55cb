package gotdclient

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/telegram/cache"
	"telegram-reader/internal/infra/telegram/peersmgr"
)

// services возвращает подсистемы, доступные после CheckDatabaseEncryptionKey.
func (c *Client) services() (Engine, *peersmgr.Service, *cache.Messages, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return nil, nil, nil, tdapi.ErrNotStarted
	}
	return c.engine, c.peers, c.messages, nil
}

// GetMe возвращает текущий аккаунт.
func (c *Client) GetMe(ctx context.Context) (*tdapi.User, error) {
	c.mu.Lock()
	self := c.self
	c.mu.Unlock()
	if self == nil {
		var err error
		if self, err = c.fetchSelf(ctx); err != nil {
			return nil, err
		}
	}
	u := convertUser(self)
	return &u, nil
}

func (c *Client) selfID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.self == nil {
		return 0
	}
	return c.self.ID
}

// GetChats возвращает TDLib-идентификаторы первых limit чатов из списка диалогов.
func (c *Client) GetChats(ctx context.Context, limit int) ([]int64, error) {
	_, peersSvc, _, err := c.services()
	if err != nil {
		return nil, err
	}
	ids, err := peersSvc.FetchDialogs(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "get chats")
	}
	return ids, nil
}

// GetChat возвращает сводку о чате по TDLib-идентификатору.
func (c *Client) GetChat(ctx context.Context, chatID int64) (*tdapi.Chat, error) {
	_, peersSvc, _, err := c.services()
	if err != nil {
		return nil, err
	}
	peer, ok, err := peersSvc.ResolvePeer(ctx, constant.TDLibPeerID(chatID))
	if err != nil {
		return nil, errors.Wrapf(err, "get chat %d", chatID)
	}
	if !ok {
		return nil, errors.Wrapf(tdapi.ErrChatNotFound, "chat %d", chatID)
	}
	chat := convertPeer(chatID, peer)
	return &chat, nil
}

// GetChatHistory возвращает страницу истории от новых к старым, строго старше
// FromMessageID. OnlyLocal обслуживается из локального кэша без сети;
// сетевые страницы записываются в кэш.
func (c *Client) GetChatHistory(ctx context.Context, req tdapi.HistoryRequest) (*tdapi.Messages, error) {
	engine, peersSvc, messages, err := c.services()
	if err != nil {
		return nil, err
	}

	if req.OnlyLocal {
		msgs, err := messages.Range(req.ChatID, req.FromMessageID, req.Offset, req.Limit)
		if err != nil {
			return nil, errors.Wrap(err, "read local history")
		}
		return &tdapi.Messages{Messages: msgs}, nil
	}

	input, ok, err := peersSvc.InputPeer(ctx, constant.TDLibPeerID(req.ChatID))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve chat %d", req.ChatID)
	}
	if !ok {
		return nil, errors.Wrapf(tdapi.ErrChatNotFound, "chat %d", req.ChatID)
	}

	// Страница из одних удалённых сообщений не конец истории: идём дальше от её самого старого id,
	// пока не встретится живое сообщение или сервер не вернёт пустую страницу.
	from, offset := int(req.FromMessageID), req.Offset
	for {
		resp, err := engine.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:      input,
			OffsetID:  from,
			AddOffset: offset,
			Limit:     req.Limit,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "get history %d", req.ChatID)
		}

		raw, users, chats := unpackHistory(resp)
		if err := peersSvc.Apply(ctx, users, chats); err != nil {
			logger.Warn("gotdclient: apply history entities", zap.Error(err))
		}

		out := make([]tdapi.Message, 0, len(raw))
		for _, m := range raw {
			if msg, ok := convertMessage(req.ChatID, c.selfID(), m); ok {
				out = append(out, msg)
			}
		}
		if len(out) > 0 || len(raw) == 0 {
			if err := messages.Put(out...); err != nil {
				logger.Warn("gotdclient: cache history page", zap.Int64("chat_id", req.ChatID), zap.Error(err))
			}
			return &tdapi.Messages{Messages: out}, nil
		}

		oldest := oldestID(raw)
		if from != 0 && oldest >= from {
			// Сервер не продвинулся назад; дальше идти некуда.
			return &tdapi.Messages{}, nil
		}
		logger.Debug("gotdclient: skipping page of deleted messages",
			zap.Int64("chat_id", req.ChatID), zap.Int("from", from), zap.Int("oldest", oldest))
		from, offset = oldest, 0
	}
}

func (c *Client) onNewMessage(_ context.Context, _ tg.Entities, u *tg.UpdateNewMessage) error {
	c.storeIncoming(u.Message)
	return nil
}

func (c *Client) onNewChannelMessage(_ context.Context, _ tg.Entities, u *tg.UpdateNewChannelMessage) error {
	c.storeIncoming(u.Message)
	return nil
}

// storeIncoming пишет новое сообщение в кэш и публикует UpdateNewMessage.
func (c *Client) storeIncoming(m tg.MessageClass) {
	msg, ok := convertMessage(0, c.selfID(), m)
	if !ok {
		return
	}
	_, _, messages, err := c.services()
	if err == nil {
		if err := messages.Put(msg); err != nil {
			logger.Warn("gotdclient: cache new message", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
		}
	}
	c.publish(tdapi.UpdateNewMessage{Message: msg})
}
