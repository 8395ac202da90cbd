package engine

import (
	"context"
	"sync"

	"github.com/quickserve/possync/internal/entity"
	"github.com/quickserve/possync/internal/remote"
)

// fakeRemote is an in-memory remote.Store for engine tests. It records the
// order of writes and can be scripted to fail.
type fakeRemote struct {
	mu      sync.Mutex
	records map[entity.Type]map[string]*entity.Record

	upserts      []upsertCall
	deleteCalls  []deleteCall
	failUpserts  int  // fail this many Upsert calls before succeeding
	failSnapshot bool // make Snapshot fail

	subs map[entity.Type]*fakeSub
}

type upsertCall struct {
	t   entity.Type
	rec *entity.Record
}

type deleteCall struct {
	t   entity.Type
	ids []string
}

type fakeRemoteError string

func (e fakeRemoteError) Error() string { return string(e) }

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records: make(map[entity.Type]map[string]*entity.Record),
		subs:    make(map[entity.Type]*fakeSub),
	}
}

func (f *fakeRemote) put(t entity.Type, rec *entity.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records[t] == nil {
		f.records[t] = make(map[string]*entity.Record)
	}
	f.records[t][rec.ID] = rec.Clone()
}

func (f *fakeRemote) Get(ctx context.Context, t entity.Type, id string) (*entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[t][id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (f *fakeRemote) Snapshot(ctx context.Context, t entity.Type) ([]*entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSnapshot {
		return nil, fakeRemoteError("snapshot unavailable")
	}
	var recs []*entity.Record
	for _, rec := range f.records[t] {
		recs = append(recs, rec.Clone())
	}
	return recs, nil
}

func (f *fakeRemote) Upsert(ctx context.Context, t entity.Type, rec *entity.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpserts > 0 {
		f.failUpserts--
		return fakeRemoteError("write rejected")
	}
	if f.records[t] == nil {
		f.records[t] = make(map[string]*entity.Record)
	}
	f.records[t][rec.ID] = rec.Clone()
	f.upserts = append(f.upserts, upsertCall{t: t, rec: rec.Clone()})
	return nil
}

func (f *fakeRemote) DeleteBatch(ctx context.Context, t entity.Type, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.records[t], id)
	}
	f.deleteCalls = append(f.deleteCalls, deleteCall{t: t, ids: append([]string(nil), ids...)})
	return nil
}

func (f *fakeRemote) Listen(ctx context.Context, t entity.Type) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{events: make(chan []remote.ChangeEvent, 8)}
	f.subs[t] = sub
	return sub, nil
}

func (f *fakeRemote) upsertOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.upserts))
	for i, u := range f.upserts {
		ids[i] = u.rec.ID
	}
	return ids
}

type fakeSub struct {
	events    chan []remote.ChangeEvent
	closeOnce sync.Once
}

func (s *fakeSub) Events() <-chan []remote.ChangeEvent { return s.events }

func (s *fakeSub) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}
