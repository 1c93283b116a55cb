// Package peersmgr — обёртка над gotd peers.Manager с персистентным хранилищем на bbolt.
// Сервис отвечает за:
//   - подготовку менеджера пиров (в памяти) и доступ к нему;
//   - загрузку сохранённых peers из базы в менеджер при старте;
//   - сохранение сущностей из списка диалогов;
//   - хранение снимка списка чатов (TDLib-идентификаторы в порядке выдачи);
//   - разрешение TDLib-идентификатора чата в peers.Peer.
//
// База принадлежит вызывающему: сервис её не закрывает.
package peersmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	bboltdb "github.com/gotd/contrib/bbolt"
	contribstorage "github.com/gotd/contrib/storage"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/tg"
	"go.etcd.io/bbolt"
)

const (
	peersBucketName       = "peers"
	dialogsSnapshotBucket = "dialogs_snapshot"
	dialogsSnapshotKey    = "v2"
)

var (
	peersBucketBytes        = []byte(peersBucketName)
	dialogsSnapshotBuckets  = []byte(dialogsSnapshotBucket)
	dialogsSnapshotKeyBytes = []byte(dialogsSnapshotKey)
)

// Service инкапсулирует менеджер пиров и bbolt-хранилище.
type Service struct {
	db    *bbolt.DB
	store contribstorage.PeerStorage
	Mgr   *peers.Manager

	mu      sync.RWMutex
	dialogs []int64
}

// New создаёт сервис пиров поверх открытой bbolt-базы и gotd peers.Manager.
// Сразу загружает сохранённый снимок списка чатов (если есть), сетевых запросов не делает.
func New(api *tg.Client, db *bbolt.DB) (*Service, error) {
	if api == nil {
		return nil, errors.New("peersmgr: api client is nil")
	}
	if db == nil {
		return nil, errors.New("peersmgr: db is nil")
	}

	service := &Service{
		db:    db,
		store: bboltdb.NewPeerStorage(db, peersBucketBytes),
		Mgr:   (peers.Options{}).Build(api),
	}

	if err := service.loadDialogsSnapshot(); err != nil {
		return nil, err
	}
	return service, nil
}

// Store возвращает персистентное хранилище пиров (для UpdateHook).
func (s *Service) Store() contribstorage.PeerStorage {
	return s.store
}

// Dialogs возвращает копию снимка списка чатов.
func (s *Service) Dialogs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.dialogs) == 0 {
		return nil
	}
	result := make([]int64, len(s.dialogs))
	copy(result, s.dialogs)
	return result
}

// LoadFromStorage прогружает сохранённые peers из bbolt в оперативный peers.Manager.
func (s *Service) LoadFromStorage(ctx context.Context) error {
	iter, exists, err := s.iterateStoredPeers(ctx)
	if err != nil {
		if isJSONUnmarshalError(err) {
			_ = s.resetPeersBucket()
			return nil
		}
		return fmt.Errorf("peersmgr: iterate stored peers: %w", err)
	}
	if !exists {
		return nil
	}
	defer func() {
		_ = iter.Close()
	}()

	users := make([]tg.UserClass, 0)
	chats := make([]tg.ChatClass, 0)

	for iter.Next(ctx) {
		value := iter.Value()
		switch value.Key.Kind {
		case dialogs.User:
			user := value.User
			if user == nil {
				user = &tg.User{ID: value.Key.ID, AccessHash: value.Key.AccessHash}
			}
			users = append(users, user)
		case dialogs.Chat:
			chat := value.Chat
			if chat == nil {
				chat = &tg.Chat{ID: value.Key.ID}
			}
			chats = append(chats, chat)
		case dialogs.Channel:
			channel := value.Channel
			if channel == nil {
				channel = &tg.Channel{ID: value.Key.ID, AccessHash: value.Key.AccessHash}
			}
			chats = append(chats, channel)
		}
	}

	if err = iter.Err(); err != nil {
		return fmt.Errorf("peersmgr: iterate stored peers: %w", err)
	}
	if len(users) == 0 && len(chats) == 0 {
		return nil
	}
	return s.Mgr.Apply(ctx, users, chats)
}

// Apply передаёт сущности в peers.Manager и сохраняет их в bbolt.
func (s *Service) Apply(ctx context.Context, users []tg.UserClass, chats []tg.ChatClass) error {
	if len(users) == 0 && len(chats) == 0 {
		return nil
	}
	if err := s.Mgr.Apply(ctx, users, chats); err != nil {
		return fmt.Errorf("peersmgr: apply entities: %w", err)
	}
	for _, u := range users {
		var p contribstorage.Peer
		if !p.FromUser(u) {
			continue
		}
		if err := s.store.Add(ctx, p); err != nil {
			return fmt.Errorf("peersmgr: store user %d: %w", p.Key.ID, err)
		}
	}
	for _, c := range chats {
		var p contribstorage.Peer
		if !p.FromChat(c) {
			continue
		}
		if err := s.store.Add(ctx, p); err != nil {
			return fmt.Errorf("peersmgr: store chat %d: %w", p.Key.ID, err)
		}
	}
	return nil
}

// ResolvePeer разрешает TDLib-идентификатор чата; ok=false, если сущность неизвестна.
func (s *Service) ResolvePeer(ctx context.Context, id constant.TDLibPeerID) (peers.Peer, bool, error) {
	var (
		peer peers.Peer
		err  error
	)
	switch {
	case id.IsUser():
		var user peers.User
		user, err = s.Mgr.ResolveUserID(ctx, id.ToPlain())
		peer = user
	case id.IsChat():
		var chat peers.Chat
		chat, err = s.Mgr.ResolveChatID(ctx, id.ToPlain())
		peer = chat
	case id.IsChannel():
		var channel peers.Channel
		channel, err = s.Mgr.ResolveChannelID(ctx, id.ToPlain())
		peer = channel
	default:
		return nil, false, fmt.Errorf("peersmgr: unsupported peer id %d", id)
	}
	if err != nil {
		var nf *peers.PeerNotFoundError
		if errors.As(err, &nf) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("resolve peer %d: %w", id, err)
	}
	return peer, true, nil
}

// InputPeer возвращает tg.InputPeerClass для TDLib-идентификатора чата.
func (s *Service) InputPeer(ctx context.Context, id constant.TDLibPeerID) (tg.InputPeerClass, bool, error) {
	peer, ok, err := s.ResolvePeer(ctx, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return peer.InputPeer(), true, nil
}

func (s *Service) iterateStoredPeers(ctx context.Context) (contribstorage.PeerIterator, bool, error) {
	exists := false
	if err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(peersBucketBytes) != nil
		return nil
	}); err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	iter, err := s.store.Iterate(ctx)
	if err != nil {
		return nil, false, err
	}
	return iter, true, nil
}

func isJSONUnmarshalError(err error) bool {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	return strings.Contains(err.Error(), "json:")
}

func (s *Service) resetPeersBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(peersBucketBytes); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(peersBucketBytes)
		return err
	})
}

func (s *Service) loadDialogsSnapshot() error {
	var data []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(dialogsSnapshotBuckets)
		if bucket == nil {
			return nil
		}
		data = append(data, bucket.Get(dialogsSnapshotKeyBytes)...)
		return nil
	}); err != nil {
		return fmt.Errorf("peersmgr: load snapshot: %w", err)
	}

	if len(data) == 0 {
		s.setDialogs(nil)
		return nil
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("peersmgr: decode snapshot: %w", err)
	}
	s.setDialogs(ids)
	return nil
}

func (s *Service) saveDialogsSnapshot(ids []int64) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("peersmgr: marshal snapshot: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, bucketErr := tx.CreateBucketIfNotExists(dialogsSnapshotBuckets)
		if bucketErr != nil {
			return bucketErr
		}
		return bucket.Put(dialogsSnapshotKeyBytes, payload)
	})
	if err != nil {
		return fmt.Errorf("peersmgr: save snapshot: %w", err)
	}
	s.setDialogs(ids)
	return nil
}

func (s *Service) setDialogs(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 {
		s.dialogs = nil
		return
	}
	s.dialogs = make([]int64, len(ids))
	copy(s.dialogs, ids)
}
