package peersmgr

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"
)

var errDialogsNotModified = errors.New("dialogs not modified")

// FetchDialogs запрашивает первую страницу списка диалогов (до limit штук),
// применяет сущности к менеджеру, сохраняет снимок и возвращает TDLib-идентификаторы
// чатов в порядке выдачи Telegram. Папки пропускаются.
// Если сервер ответил «не изменилось», возвращается сохранённый снимок.
func (s *Service) FetchDialogs(ctx context.Context, limit int) ([]int64, error) {
	resp, err := s.Mgr.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("MessagesGetDialogs: %w", err)
	}

	batch, err := normalizeDialogsResponse(resp)
	if errors.Is(err, errDialogsNotModified) {
		return s.Dialogs(), nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.Apply(ctx, batch.Users, batch.Chats); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(batch.Dialogs))
	for _, dialog := range batch.Dialogs {
		dlg, ok := dialog.(*tg.Dialog)
		if !ok {
			continue
		}
		if id, ok := TDLibID(dlg.Peer); ok {
			ids = append(ids, int64(id))
		}
		if len(ids) == limit {
			break
		}
	}

	if err := s.saveDialogsSnapshot(ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// TDLibID переводит tg.PeerClass в TDLib-идентификатор чата.
func TDLibID(peer tg.PeerClass) (constant.TDLibPeerID, bool) {
	var id constant.TDLibPeerID
	switch p := peer.(type) {
	case *tg.PeerUser:
		id.User(p.UserID)
	case *tg.PeerChat:
		id.Chat(p.ChatID)
	case *tg.PeerChannel:
		id.Channel(p.ChannelID)
	default:
		return 0, false
	}
	return id, true
}

func normalizeDialogsResponse(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch data := resp.(type) {
	case *tg.MessagesDialogs:
		return data, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  data.Dialogs,
			Messages: data.Messages,
			Chats:    data.Chats,
			Users:    data.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errDialogsNotModified
	default:
		return nil, fmt.Errorf("unexpected dialogs response: %T", resp)
	}
}
