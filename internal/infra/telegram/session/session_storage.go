// Package session содержит файловое хранилище MTProto-сессии для gotd.
// Запись атомарная (без частичных состояний), доступ сериализован мьютексом.
package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-faster/errors"
	tdsession "github.com/gotd/td/session"

	"telegram-reader/internal/infra/logger"
	"telegram-reader/internal/infra/storage"
)

// FileStorage реализует tdsession.Storage поверх обычного файла.
// Поле Path указывает путь до файла сессии на диске.
type FileStorage struct {
	Path string
	mux  sync.Mutex
}

// Компиляторная проверка соответствия интерфейсу tdsession.Storage.
var _ tdsession.Storage = (*FileStorage)(nil)

// LoadSession читает файл сессии с диска. Отсутствующий или пустой файл — tdsession.ErrNotFound.
func (f *FileStorage) LoadSession(_ context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	return data, nil
}

// StoreSession атомарно сохраняет данные сессии на диск.
func (f *FileStorage) StoreSession(_ context.Context, data []byte) error {
	if f == nil {
		return errors.New("nil session storage is invalid")
	}

	f.mux.Lock()
	defer f.mux.Unlock()

	if err := storage.AtomicWriteFile(f.Path, data); err != nil {
		return fmt.Errorf("atomic write session: %w", err)
	}
	logger.Debug("session stored")
	return nil
}

// Exists сообщает, есть ли на диске непустой файл сессии.
func (f *FileStorage) Exists() bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	info, err := os.Stat(f.Path)
	return err == nil && info.Size() > 0
}
