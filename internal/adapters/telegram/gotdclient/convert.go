package gotdclient

import (
	"time"

	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/tg"

	"telegram-reader/internal/adapters/telegram/tdapi"
	"telegram-reader/internal/infra/telegram/peersmgr"
)

func convertUser(u *tg.User) tdapi.User {
	if u == nil {
		return tdapi.User{}
	}
	return tdapi.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Phone:     u.Phone,
	}
}

// convertPeer строит сводку о чате. Каналы-трансляции и супергруппы
// одинаково считаются супергруппами.
func convertPeer(chatID int64, p peers.Peer) tdapi.Chat {
	chat := tdapi.Chat{ID: chatID}
	switch v := p.(type) {
	case peers.User:
		chat.Kind = tdapi.ChatKindPrivate
		chat.Title = convertUser(v.Raw()).FullName()
	case peers.Chat:
		chat.Kind = tdapi.ChatKindBasicGroup
		chat.Title = v.Raw().Title
	case peers.Channel:
		chat.Kind = tdapi.ChatKindSupergroup
		chat.Title = v.Raw().Title
	default:
		chat.Kind = tdapi.ChatKindOther
	}
	return chat
}

// convertMessage переводит сообщение MTProto в текстовую проекцию. chatID=0 —
// взять чат из самого сообщения. Исходящее без отправителя приписывается selfID.
// Пустые сообщения пропускаются.
func convertMessage(chatID, selfID int64, m tg.MessageClass) (tdapi.Message, bool) {
	var (
		msg     tdapi.Message
		peer    tg.PeerClass
		from    tg.PeerClass
		hasFrom bool
	)
	switch v := m.(type) {
	case *tg.Message:
		peer = v.PeerID
		from, hasFrom = v.GetFromID()
		msg = tdapi.Message{
			ID:       int64(v.ID),
			Date:     time.Unix(int64(v.Date), 0).UTC(),
			Text:     v.Message,
			Outgoing: v.Out,
		}
	case *tg.MessageService:
		peer = v.PeerID
		from, hasFrom = v.GetFromID()
		msg = tdapi.Message{
			ID:       int64(v.ID),
			Date:     time.Unix(int64(v.Date), 0).UTC(),
			Outgoing: v.Out,
			Service:  true,
		}
	default:
		return tdapi.Message{}, false
	}

	msg.ChatID = chatID
	if msg.ChatID == 0 {
		id, ok := peersmgr.TDLibID(peer)
		if !ok {
			return tdapi.Message{}, false
		}
		msg.ChatID = int64(id)
	}
	switch {
	case hasFrom:
	case msg.Outgoing && selfID != 0:
		msg.SenderID = selfID
		return msg, true
	default:
		from = peer
	}
	if id, ok := peersmgr.TDLibID(from); ok {
		msg.SenderID = int64(id)
	}
	return msg, true
}

// unpackHistory разбирает ответ messages.getHistory. Порядок сообщений сохраняется
// (от новых к старым).
func unpackHistory(resp tg.MessagesMessagesClass) ([]tg.MessageClass, []tg.UserClass, []tg.ChatClass) {
	switch v := resp.(type) {
	case *tg.MessagesMessages:
		return v.Messages, v.Users, v.Chats
	case *tg.MessagesMessagesSlice:
		return v.Messages, v.Users, v.Chats
	case *tg.MessagesChannelMessages:
		return v.Messages, v.Users, v.Chats
	default:
		return nil, nil, nil
	}
}

// oldestID возвращает наименьший id страницы, включая удалённые сообщения.
func oldestID(raw []tg.MessageClass) int {
	oldest := 0
	for i, m := range raw {
		if id := m.GetID(); i == 0 || id < oldest {
			oldest = id
		}
	}
	return oldest
}
