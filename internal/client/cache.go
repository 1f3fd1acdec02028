package client

import (
	"context"
	"sync"
	"time"

	"github.com/kuitang/notedesk/internal/api"
	"github.com/kuitang/notedesk/internal/dates"
	"github.com/kuitang/notedesk/internal/errs"
	"github.com/kuitang/notedesk/internal/notes"
	"github.com/kuitang/notedesk/internal/obs"
	"github.com/kuitang/notedesk/internal/tasks"
)

const copySuffix = "(Copy)"

// Gateway is the subset of *Client the cache drives.
type Gateway interface {
	ListTasks(ctx context.Context) ([]tasks.Task, error)
	CreateTask(ctx context.Context, in api.TaskRequest) (*tasks.Task, error)
	UpdateTask(ctx context.Context, id int64, in api.TaskRequest) (*tasks.Task, error)
	DeleteTask(ctx context.Context, id int64) error

	ListNotes(ctx context.Context) ([]notes.Note, error)
	CreateNote(ctx context.Context, in api.NoteRequest) (*notes.Note, error)
	UpdateNote(ctx context.Context, id int64, in api.NoteRequest) (*notes.Note, error)
	DeleteNote(ctx context.Context, id int64) error
}

// Collection names one of the cached lists.
type Collection string

const (
	CollectionTasks Collection = "tasks"
	CollectionNotes Collection = "notes"
)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// Async sends updates and deletes in the background. Callers observe the
// optimistic state at once and use Wait to block on reconciliation.
func Async() CacheOption {
	return func(c *Cache) { c.async = true }
}

// localOp is an optimistic change. It is re-applied on top of any fetch
// that may not reflect it: while the request is pending, and once confirmed,
// on fetches that started before the confirmation. Every apply is idempotent.
type localOp[T any] struct {
	apply  func([]T) []T
	done   bool
	doneAt uint64 // fetchSeq when the server confirmed
}

// collection is the state kept per list. fetchSeq numbers fetches; only the
// newest fetch may replace items.
type collection[T any] struct {
	items    []T
	inflight int
	fetchSeq uint64
	ops      []*localOp[T]
}

func (c *collection[T]) snapshot() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// begin applies fn locally and tracks it until the server answers.
func (c *collection[T]) begin(fn func([]T) []T) *localOp[T] {
	op := &localOp[T]{apply: fn}
	c.ops = append(c.ops, op)
	c.items = fn(c.items)
	return op
}

// confirm marks op accepted by the server.
func (c *collection[T]) confirm(op *localOp[T]) {
	op.done, op.doneAt = true, c.fetchSeq
	c.prune()
}

// discard forgets a rejected op. Its local effect stays until the
// reconciling fetch lands.
func (c *collection[T]) discard(op *localOp[T]) {
	kept := c.ops[:0]
	for _, o := range c.ops {
		if o != op {
			kept = append(kept, o)
		}
	}
	c.ops = kept
	c.prune()
}

// reapply runs every pending op over items again.
func (c *collection[T]) reapply() {
	for _, o := range c.ops {
		if !o.done {
			c.items = o.apply(c.items)
		}
	}
}

// land installs the result of fetch number seq. It reports false when a
// newer fetch has started.
func (c *collection[T]) land(seq uint64, items []T) bool {
	if seq != c.fetchSeq {
		return false
	}
	if items == nil {
		items = []T{}
	}
	for _, o := range c.ops {
		if !o.done || o.doneAt >= seq {
			items = o.apply(items)
		}
	}
	c.items = items
	return true
}

// prune drops confirmed ops once no fetch that predates them is in flight.
func (c *collection[T]) prune() {
	if c.inflight > 0 {
		return
	}
	kept := c.ops[:0]
	for _, o := range c.ops {
		if !o.done {
			kept = append(kept, o)
		}
	}
	c.ops = kept
}

// Cache holds the signed-in user's tasks and notes and applies edits
// optimistically. A failed mutation is reconciled by refetching the whole
// collection. The zero value is not usable; create one with NewCache.
type Cache struct {
	gw    Gateway
	async bool

	mu        sync.Mutex
	tasks     collection[tasks.Task]
	notes     collection[notes.Note]
	listeners map[int]func(Collection)
	nextID    int

	wg sync.WaitGroup
}

// NewCache creates an empty cache backed by gw.
func NewCache(gw Gateway, opts ...CacheOption) *Cache {
	c := &Cache{
		gw:        gw,
		tasks:     collection[tasks.Task]{items: []tasks.Task{}},
		notes:     collection[notes.Note]{items: []notes.Note{}},
		listeners: make(map[int]func(Collection)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn to run after any change to a collection, including
// loading flag flips. fn runs without the cache lock held. The returned
// function unregisters it.
func (c *Cache) OnChange(fn func(Collection)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) notify(col Collection) {
	c.mu.Lock()
	fns := make([]func(Collection), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(col)
	}
}

// Tasks returns a copy of the cached tasks.
func (c *Cache) Tasks() []tasks.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks.snapshot()
}

// Notes returns a copy of the cached notes.
func (c *Cache) Notes() []notes.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notes.snapshot()
}

// Loading reports whether a fetch of col is in flight.
func (c *Cache) Loading(col Collection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col == CollectionNotes {
		return c.notes.inflight > 0
	}
	return c.tasks.inflight > 0
}

// Wait blocks until background requests and their reconciliation finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// FetchTasks replaces the cached tasks with the server's list, with local
// changes the response may predate applied on top. A response that lands
// after a newer fetch started is dropped.
func (c *Cache) FetchTasks(ctx context.Context) error {
	return fetch(c, ctx, &c.tasks, CollectionTasks, c.gw.ListTasks)
}

// FetchNotes replaces the cached notes with the server's list.
func (c *Cache) FetchNotes(ctx context.Context) error {
	return fetch(c, ctx, &c.notes, CollectionNotes, c.gw.ListNotes)
}

func fetch[T any](c *Cache, ctx context.Context, col *collection[T], name Collection, list func(context.Context) ([]T, error)) error {
	c.mu.Lock()
	col.fetchSeq++
	seq := col.fetchSeq
	col.inflight++
	c.mu.Unlock()
	c.notify(name)

	items, err := list(ctx)

	c.mu.Lock()
	col.inflight--
	applied := err == nil && col.land(seq, items)
	col.prune()
	c.mu.Unlock()

	logger := obs.From(ctx).With("pkg", "client", "collection", string(name))
	switch {
	case err != nil:
		logger.Warn("cache_fetch_failed", "error", err)
	case !applied:
		logger.Debug("cache_fetch_superseded", "seq", seq)
	}
	c.notify(name)
	return err
}

// CreateTask waits for the server record, then prepends it.
func (c *Cache) CreateTask(ctx context.Context, in api.TaskRequest) (*tasks.Task, error) {
	created, err := c.gw.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.tasks.confirm(c.tasks.begin(prependTask(*created)))
	c.mu.Unlock()
	c.notify(CollectionTasks)
	return created, nil
}

// CreateNote waits for the server record, then prepends it.
func (c *Cache) CreateNote(ctx context.Context, in api.NoteRequest) (*notes.Note, error) {
	created, err := c.gw.CreateNote(ctx, in)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.notes.confirm(c.notes.begin(prependNote(*created)))
	c.mu.Unlock()
	c.notify(CollectionNotes)
	return created, nil
}

// UpdateTask merges in into the cached task at once, then sends it. On
// failure the task list is refetched. In Async mode it returns nil
// immediately and errors surface only through the refetch.
func (c *Cache) UpdateTask(ctx context.Context, id int64, in api.TaskRequest) error {
	c.mu.Lock()
	op := c.tasks.begin(func(items []tasks.Task) []tasks.Task {
		for i := range items {
			if items[i].ID == id {
				mergeTask(&items[i], in)
			}
		}
		return items
	})
	c.mu.Unlock()
	c.notify(CollectionTasks)

	return c.send(ctx, CollectionTasks, func(ctx context.Context) error {
		updated, err := c.gw.UpdateTask(ctx, id, in)
		c.mu.Lock()
		if err != nil {
			c.tasks.discard(op)
		} else {
			settle(&c.tasks, op, replaceByID(*updated, func(t tasks.Task) int64 { return t.ID }))
		}
		c.mu.Unlock()
		if err == nil {
			c.notify(CollectionTasks)
		}
		return err
	})
}

// UpdateNote merges in into the cached note at once, then sends it.
func (c *Cache) UpdateNote(ctx context.Context, id int64, in api.NoteRequest) error {
	c.mu.Lock()
	op := c.notes.begin(func(items []notes.Note) []notes.Note {
		for i := range items {
			if items[i].ID == id {
				mergeNote(&items[i], in)
			}
		}
		return items
	})
	c.mu.Unlock()
	c.notify(CollectionNotes)

	return c.send(ctx, CollectionNotes, func(ctx context.Context) error {
		updated, err := c.gw.UpdateNote(ctx, id, in)
		c.mu.Lock()
		if err != nil {
			c.notes.discard(op)
		} else {
			settle(&c.notes, op, replaceByID(*updated, func(n notes.Note) int64 { return n.ID }))
		}
		c.mu.Unlock()
		if err == nil {
			c.notify(CollectionNotes)
		}
		return err
	})
}

// DeleteTask removes the task locally at once, then sends the delete.
func (c *Cache) DeleteTask(ctx context.Context, id int64) error {
	c.mu.Lock()
	op := c.tasks.begin(func(items []tasks.Task) []tasks.Task {
		return removeByID(items, id, func(t tasks.Task) int64 { return t.ID })
	})
	c.mu.Unlock()
	c.notify(CollectionTasks)

	return c.send(ctx, CollectionTasks, func(ctx context.Context) error {
		err := c.gw.DeleteTask(ctx, id)
		c.mu.Lock()
		if err != nil {
			c.tasks.discard(op)
		} else {
			c.tasks.confirm(op)
		}
		c.mu.Unlock()
		return err
	})
}

// DeleteNote removes the note locally at once, then sends the delete.
func (c *Cache) DeleteNote(ctx context.Context, id int64) error {
	c.mu.Lock()
	op := c.notes.begin(func(items []notes.Note) []notes.Note {
		return removeByID(items, id, func(n notes.Note) int64 { return n.ID })
	})
	c.mu.Unlock()
	c.notify(CollectionNotes)

	return c.send(ctx, CollectionNotes, func(ctx context.Context) error {
		err := c.gw.DeleteNote(ctx, id)
		c.mu.Lock()
		if err != nil {
			c.notes.discard(op)
		} else {
			c.notes.confirm(op)
		}
		c.mu.Unlock()
		return err
	})
}

// DuplicateTask creates an uncompleted copy of a cached task.
func (c *Cache) DuplicateTask(ctx context.Context, id int64) (*tasks.Task, error) {
	c.mu.Lock()
	var src *tasks.Task
	for _, t := range c.tasks.items {
		if t.ID == id {
			src = &t
			break
		}
	}
	c.mu.Unlock()
	if src == nil {
		return nil, errs.New(errs.NotFound, "task not found")
	}

	title := copyTitle(src.Title)
	completed := false
	date := src.Date.UTC().Format(time.RFC3339Nano)
	return c.CreateTask(ctx, api.TaskRequest{
		Title:       &title,
		Content:     &src.Content,
		IsCompleted: &completed,
		Date:        &date,
		Image:       src.Image,
	})
}

// DuplicateNote creates a copy of a cached note, summary included.
func (c *Cache) DuplicateNote(ctx context.Context, id int64) (*notes.Note, error) {
	c.mu.Lock()
	var src *notes.Note
	for _, n := range c.notes.items {
		if n.ID == id {
			src = &n
			break
		}
	}
	c.mu.Unlock()
	if src == nil {
		return nil, errs.New(errs.NotFound, "note not found")
	}

	title := copyTitle(src.Title)
	date := src.Date.UTC().Format(time.RFC3339Nano)
	return c.CreateNote(ctx, api.NoteRequest{
		Title:   &title,
		Content: &src.Content,
		Summary: src.Summary,
		Image:   src.Image,
		Date:    &date,
	})
}

// send runs req inline or in the background and refetches col if it fails.
func (c *Cache) send(ctx context.Context, col Collection, req func(context.Context) error) error {
	run := func(ctx context.Context) error {
		err := req(ctx)
		if err == nil {
			return nil
		}
		obs.From(ctx).With("pkg", "client", "collection", string(col)).
			Warn("cache_mutation_rejected", "code", errs.CodeOf(err), "error", err)
		if col == CollectionNotes {
			_ = c.FetchNotes(ctx)
		} else {
			_ = c.FetchTasks(ctx)
		}
		return err
	}

	if !c.async {
		return run(ctx)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = run(context.WithoutCancel(ctx))
	}()
	return nil
}

// settle swaps op for the server's answer, applies it, and lays the other
// pending ops back on top so their local effect survives.
func settle[T any](col *collection[T], op *localOp[T], answer func([]T) []T) {
	op.apply = answer
	col.items = answer(col.items)
	col.reapply()
	col.confirm(op)
}

func replaceByID[T any](v T, idOf func(T) int64) func([]T) []T {
	return func(items []T) []T {
		for i := range items {
			if idOf(items[i]) == idOf(v) {
				items[i] = v
			}
		}
		return items
	}
}

func prependTask(t tasks.Task) func([]tasks.Task) []tasks.Task {
	return func(items []tasks.Task) []tasks.Task {
		for _, have := range items {
			if have.ID == t.ID {
				return items
			}
		}
		return append([]tasks.Task{t}, items...)
	}
}

func prependNote(n notes.Note) func([]notes.Note) []notes.Note {
	return func(items []notes.Note) []notes.Note {
		for _, have := range items {
			if have.ID == n.ID {
				return items
			}
		}
		return append([]notes.Note{n}, items...)
	}
}

func mergeTask(t *tasks.Task, in api.TaskRequest) {
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Content != nil {
		t.Content = *in.Content
	}
	if in.IsCompleted != nil {
		t.IsCompleted = *in.IsCompleted
	}
	if d, err := dates.ParseOptional(in.Date); err == nil && d != nil {
		t.Date = *d
	}
	if in.Image != nil {
		t.Image = optional(*in.Image)
	}
}

func mergeNote(n *notes.Note, in api.NoteRequest) {
	if in.Title != nil {
		n.Title = *in.Title
	}
	if in.Content != nil {
		n.Content = *in.Content
	}
	if in.Summary != nil {
		n.Summary = optional(*in.Summary)
	}
	if d, err := dates.ParseOptional(in.Date); err == nil && d != nil {
		n.Date = *d
	}
	if in.Image != nil {
		n.Image = optional(*in.Image)
	}
}

func removeByID[T any](items []T, id int64, idOf func(T) int64) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if idOf(item) != id {
			out = append(out, item)
		}
	}
	return out
}

func copyTitle(title string) string {
	if title == "" {
		return copySuffix
	}
	return title + " " + copySuffix
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
