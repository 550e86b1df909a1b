// Package store keeps the working task collection and persists it to a
// local cache first and a per-user remote document second, reconciling the
// two on load.
package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nadmax/pomodoro/internal/logging"
	"github.com/nadmax/pomodoro/internal/metrics"
	"github.com/nadmax/pomodoro/internal/task"
)

const (
	DefaultLoadTimeout = 5 * time.Second
	DefaultSaveTimeout = 10 * time.Second
	saveAttempts       = 2
)

type Source string

const (
	SourceEmpty  Source = "empty"
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

type EventKind int

const (
	EventChanged EventKind = iota
	EventSynced
	EventSyncFailed
)

// Event is published after every mutation and after every remote write.
type Event struct {
	Kind  EventKind
	Tasks []task.Task
	Err   error
}

type LoadReport struct {
	Source      Source
	Problems    []task.DeserializationError
	RemoteErr   error
	PendingSync bool
}

type Options struct {
	// UserID keys the remote document. Without it the store is local only.
	UserID      string
	LoadTimeout time.Duration
	SaveTimeout time.Duration
	Location    *time.Location
	Logger      *log.Logger
	Now         func() time.Time
}

type Store struct {
	local   LocalCache
	remote  RemoteStore
	opts    Options
	decoder *task.Decoder
	l       *log.Logger

	mu     sync.Mutex
	tasks  []task.Task
	dirty  bool
	seq    uint64
	subs   map[int]func(Event)
	nextID int

	pushMu sync.Mutex
	wg     sync.WaitGroup
}

// New builds a store. remote may be nil.
func New(local LocalCache, remote RemoteStore, opts Options) *Store {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dec := task.NewDecoder(opts.Location)
	dec.Now = opts.Now

	return &Store{
		local:   local,
		remote:  remote,
		opts:    opts,
		decoder: dec,
		l:       logging.OrDiscard(opts.Logger),
		tasks:   []task.Task{},
		subs:    make(map[int]func(Event)),
	}
}

func (s *Store) remoteEnabled() bool {
	return s.remote != nil && s.opts.UserID != ""
}

// Load reads both copies and installs the reconciled collection. Remote
// problems never fail the load; they are recorded in the report.
func (s *Store) Load(ctx context.Context) ([]task.Task, LoadReport) {
	var report LoadReport

	local, localFound := s.readLocal(ctx, &report)
	pendingAt, pending := s.readPending(ctx)

	var (
		remote        []task.Task
		remoteFound   bool
		remoteUpdated time.Time
	)
	if s.remoteEnabled() {
		remote, remoteUpdated, remoteFound = s.readRemote(ctx, &report)
	}

	var result []task.Task
	switch {
	case pending && localFound && (!remoteFound || remoteUpdated.Before(pendingAt)):
		// local edits never reached the remote copy
		result, report.Source = local, SourceLocal
	case localFound && remoteFound:
		result = Merge(local, remote)
		report.Source = SourceRemote
		if localWins(local, remote) {
			report.Source = SourceLocal
		}
	case remoteFound:
		result, report.Source = remote, SourceRemote
	case localFound:
		result, report.Source = local, SourceLocal
	default:
		result, report.Source = []task.Task{}, SourceEmpty
	}
	if result == nil {
		result = []task.Task{}
	}

	// local data won while the remote copy was reachable but lacked it, or
	// an earlier write never made it
	dirty := s.remoteEnabled() && report.Source == SourceLocal &&
		(pending || (len(result) > 0 && report.RemoteErr == nil))
	report.PendingSync = dirty

	s.mu.Lock()
	s.tasks = task.CloneAll(result)
	s.dirty = dirty
	snapshot := task.CloneAll(result)
	s.mu.Unlock()

	if report.Source == SourceRemote {
		if data, err := task.EncodeEpoch(snapshot); err == nil {
			s.writeLocal(ctx, data)
		}
	}
	if !dirty && pending {
		s.clearPending(ctx)
	}
	if dirty {
		s.markPending(ctx)
	}

	metrics.RecordStoreLoad(string(report.Source))
	metrics.RecordDeserializationFallbacks(len(report.Problems))
	updateGauges(snapshot)
	s.l.Info("tasks loaded", "source", report.Source, "count", len(snapshot), "pendingSync", dirty)

	s.publish(Event{Kind: EventChanged, Tasks: snapshot})
	return task.CloneAll(snapshot), report
}

func (s *Store) readLocal(ctx context.Context, report *LoadReport) ([]task.Task, bool) {
	raw, ok, err := s.local.Get(ctx, KeyTasks)
	if err != nil {
		s.l.Warn("local cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	tasks, problems, err := s.decoder.Decode([]byte(raw))
	if err != nil {
		s.l.Warn("local cache is corrupt", "error", err)
		return nil, false
	}
	s.logProblems("local", problems)
	report.Problems = append(report.Problems, problems...)
	return tasks, true
}

func (s *Store) readRemote(ctx context.Context, report *LoadReport) ([]task.Task, time.Time, bool) {
	lctx, cancel := context.WithTimeout(ctx, s.opts.LoadTimeout)
	defer cancel()

	doc, found, err := s.remote.Fetch(lctx, s.opts.UserID)
	if err != nil {
		report.RemoteErr = &PersistenceError{Op: "load", Attempts: 1, Err: err}
		s.l.Warn("remote load failed, using local cache", "error", err)
		return nil, time.Time{}, false
	}
	if !found {
		return nil, time.Time{}, false
	}

	tasks, problems, err := s.decoder.Decode(doc.Tasks)
	if err != nil {
		report.RemoteErr = &PersistenceError{Op: "load", Attempts: 1, Err: err}
		s.l.Warn("remote document is corrupt, using local cache", "error", err)
		return nil, time.Time{}, false
	}
	s.logProblems("remote", problems)
	report.Problems = append(report.Problems, problems...)
	return tasks, time.UnixMilli(doc.LastUpdated).UTC(), true
}

func (s *Store) logProblems(source string, problems []task.DeserializationError) {
	for _, p := range problems {
		s.l.Warn("substituted unreadable field", "source", source, "task", p.TaskID, "field", p.Field, "raw", p.Raw)
	}
}

func (s *Store) readPending(ctx context.Context) (time.Time, bool) {
	raw, ok, err := s.local.Get(ctx, KeyPendingSync)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// Save replaces the collection. The local cache is written before Save
// returns; the remote write continues in the background and reports through
// subscriber events.
func (s *Store) Save(ctx context.Context, tasks []task.Task) error {
	_, err := s.Apply(ctx, func(working *[]task.Task) error {
		*working = task.CloneAll(tasks)
		return nil
	})
	return err
}

// Apply runs fn against a copy of the collection under the store lock. When
// fn returns nil the copy becomes the collection and is persisted; otherwise
// nothing changes.
func (s *Store) Apply(ctx context.Context, fn func(tasks *[]task.Task) error) ([]task.Task, error) {
	s.mu.Lock()
	working := task.CloneAll(s.tasks)
	if err := fn(&working); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if working == nil {
		working = []task.Task{}
	}
	s.tasks = working
	snapshot := task.CloneAll(working)

	data, err := task.EncodeEpoch(snapshot)
	if err != nil {
		s.mu.Unlock()
		return snapshot, err
	}
	s.writeLocal(ctx, data)
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	updateGauges(snapshot)
	s.publish(Event{Kind: EventChanged, Tasks: task.CloneAll(snapshot)})
	if s.remoteEnabled() {
		s.pushAsync(seq, data)
	}
	return snapshot, nil
}

func (s *Store) writeLocal(ctx context.Context, data []byte) {
	start := time.Now()
	err := s.local.Set(ctx, KeyTasks, string(data))
	metrics.RecordStoreSave("local", err, time.Since(start))
	if err != nil {
		s.l.Warn("local cache write failed", "error", err)
	}
}

func (s *Store) pushAsync(seq uint64, data []byte) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pushMu.Lock()
		defer s.pushMu.Unlock()

		if s.currentSeq() != seq {
			// a newer save is queued behind us
			return
		}
		err := s.push(context.Background(), data)
		s.afterPush(seq, err)
	}()
}

// push writes the remote document with a bounded timeout and one retry.
func (s *Store) push(ctx context.Context, data []byte) error {
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, s.opts.SaveTimeout)
		start := time.Now()
		err = s.remote.Put(actx, s.opts.UserID, Document{
			Tasks:       data,
			LastUpdated: s.opts.Now().UnixMilli(),
		})
		cancel()
		metrics.RecordStoreSave("remote", err, time.Since(start))
		if err == nil {
			return nil
		}
		s.l.Warn("remote save failed", "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			return &PersistenceError{Op: "save", Attempts: attempt, Err: err}
		}
	}
	return &PersistenceError{Op: "save", Attempts: saveAttempts, Err: err}
}

func (s *Store) afterPush(seq uint64, err error) {
	ctx := context.Background()
	if err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		s.markPending(ctx)
		s.l.Warn("changes pending sync", "error", err)
		s.publish(Event{Kind: EventSyncFailed, Err: err})
		return
	}

	s.mu.Lock()
	cleared := seq == s.seq
	if cleared {
		s.dirty = false
	}
	s.mu.Unlock()
	if cleared {
		s.clearPending(ctx)
		s.publish(Event{Kind: EventSynced})
	}
}

func (s *Store) markPending(ctx context.Context) {
	metrics.SetPendingSync(true)
	if err := s.local.Set(ctx, KeyPendingSync, strconv.FormatInt(s.opts.Now().UnixMilli(), 10)); err != nil {
		s.l.Warn("failed to record pending sync", "error", err)
	}
}

func (s *Store) clearPending(ctx context.Context) {
	metrics.SetPendingSync(false)
	if err := s.local.Delete(ctx, KeyPendingSync); err != nil {
		s.l.Warn("failed to clear pending sync", "error", err)
	}
}

// SyncNow writes the current collection to the remote store and waits for
// the result.
func (s *Store) SyncNow(ctx context.Context) error {
	if !s.remoteEnabled() {
		return ErrRemoteDisabled
	}

	s.mu.Lock()
	snapshot := task.CloneAll(s.tasks)
	seq := s.seq
	s.mu.Unlock()

	data, err := task.EncodeEpoch(snapshot)
	if err != nil {
		return err
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	err = s.push(ctx, data)
	s.afterPush(seq, err)
	if err == nil {
		s.l.Info("pending changes synced", "count", len(snapshot))
	}
	return err
}

// Flush waits for in-flight remote writes.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) currentSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Store) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return task.CloneAll(s.tasks)
}

func (s *Store) Get(id string) (task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := task.IndexOf(s.tasks, id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return task.Task{}, false
}

// Pending reports whether local changes still have to reach the remote copy.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Subscribe registers fn for store events and returns a function that
// removes it. fn runs on the goroutine that caused the event.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(ev Event) {
	s.mu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func updateGauges(tasks []task.Task) {
	byStatus := map[string]int{"pending": 0, "completed": 0}
	for i := range tasks {
		if tasks[i].IsComplete() {
			byStatus["completed"]++
		} else {
			byStatus["pending"]++
		}
	}
	metrics.UpdateTaskGauges(byStatus)
}
