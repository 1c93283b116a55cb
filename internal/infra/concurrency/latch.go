// Package concurrency — вспомогательная инфраструктура конкурентного исполнения.
// Данный файл содержит Latch — одноразовую защёлку: управляющий поток ждёт,
// пока обработчик апдейтов не примет решение о необходимости авторизации.

package concurrency

import (
	"context"
	"sync"
)

// Latch — одноразовый бинарный барьер. Signal переводит его из «закрыт» в «открыт»
// ровно один раз; повторные Signal ничего не делают. Сброса нет: одна защёлка на сессию.
// Нулевое значение непригодно, создавайте через NewLatch.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch создаёт закрытую защёлку.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Signal открывает защёлку. Идемпотентен и безопасен для конкурентных вызовов.
func (l *Latch) Signal() {
	l.once.Do(func() {
		close(l.ch)
	})
}

// Signaled сообщает, была ли защёлка уже открыта. Не блокирует.
func (l *Latch) Signaled() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Wait блокирует до открытия защёлки или отмены ctx. После Signal возвращается сразу.
// При отмене контекста возвращает ctx.Err().
func (l *Latch) Wait(ctx context.Context) error {
	// Уже открыта — не смотрим на контекст, даже если он отменён.
	if l.Signaled() {
		return nil
	}
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
