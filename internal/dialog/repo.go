package dialog

import (
	"context"
	"sync"
	"time"
)

// Repo хранит диалоги в памяти процесса: после рестарта все начинают с idle.
// Диалог, не менявшийся дольше ttl, считается брошенным.
type Repo struct {
	mu    sync.Mutex
	items map[int64]Item
	ttl   time.Duration
	now   func() time.Time
}

func NewRepo(ttl time.Duration) *Repo {
	return &Repo{items: map[int64]Item{}, ttl: ttl, now: time.Now}
}

func (r *Repo) Get(_ context.Context, chatID int64) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.load(chatID)
	return &it, nil
}

func (r *Repo) load(chatID int64) Item {
	it, ok := r.items[chatID]
	if !ok || (r.ttl > 0 && r.now().Sub(it.UpdatedAt) > r.ttl) {
		delete(r.items, chatID)
		return Item{ChatID: chatID, State: StateIdle, Payload: Payload{}}
	}
	p := make(Payload, len(it.Payload))
	for k, v := range it.Payload {
		p[k] = v
	}
	it.Payload = p
	return it
}

func (r *Repo) Set(_ context.Context, chatID int64, state State, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(chatID, state, payload)
	return nil
}

func (r *Repo) store(chatID int64, state State, payload Payload) {
	if state == StateIdle && len(payload) == 0 {
		delete(r.items, chatID)
		return
	}
	if payload == nil {
		payload = Payload{}
	}
	r.items[chatID] = Item{ChatID: chatID, State: state, Payload: payload, UpdatedAt: r.now()}
}

// Fire применяет событие к текущему состоянию. payload == nil сохраняет прежний payload.
func (r *Repo) Fire(_ context.Context, chatID int64, ev Event, payload Payload) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load(chatID)
	next, err := Next(cur.State, ev)
	if err != nil {
		return cur.State, err
	}
	if payload == nil {
		payload = cur.Payload
	}
	if next == StateIdle {
		payload = nil
	}
	r.store(chatID, next, payload)
	return next, nil
}

func (r *Repo) Reset(_ context.Context, chatID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, chatID)
	return nil
}

// GetString Helper для безопасного чтения строк из payload
func GetString(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func GetInt64(p Payload, key string) (int64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}
