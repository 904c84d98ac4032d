package models

import (
	"io"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDAllocator выдаёт клиентские идентификаторы. Принадлежит конкретному *Models,
// так что счётчики не протекают между экземплярами.
type IDAllocator interface {
	Next(model string) ID
	// Observe сообщает об id, пришедшем извне (загрузка сериализованных данных),
	// чтобы последующие Next не выдали его повторно
	Observe(model string, id ID)
}

// CounterAllocator: "<model>_<n>", счётчик на модель начиная с 1
type CounterAllocator struct {
	next map[string]int64
}

func NewCounterAllocator() *CounterAllocator {
	return &CounterAllocator{next: map[string]int64{}}
}

func (a *CounterAllocator) Next(model string) ID {
	n := a.next[model]
	if n == 0 {
		n = 1
	}
	a.next[model] = n + 1
	return Local(model + "_" + strconv.FormatInt(n, 10))
}

func (a *CounterAllocator) Observe(model string, id ID) {
	if !id.IsLocal() {
		return
	}
	i := strings.LastIndexByte(id.local, '_')
	if i < 0 || id.local[:i] != model {
		return
	}
	n, err := strconv.ParseInt(id.local[i+1:], 10, 64)
	if err != nil || n < 0 {
		return
	}
	if n >= a.next[model] {
		a.next[model] = n + 1
	}
}

// ULIDAllocator: "<model>_<ULID>", монотонный источник энтропии
type ULIDAllocator struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewULIDAllocator() *ULIDAllocator {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ULIDAllocator{entropy: ulid.Monotonic(src, 0)}
}

func (a *ULIDAllocator) Next(model string) ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), a.entropy)
	return Local(model + "_" + id.String())
}

// Observe: ULID не пересекаются с уже выданными, ничего делать не нужно
func (a *ULIDAllocator) Observe(string, ID) {}
