package persist

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// JournalEntry is one connection lifecycle event.
type JournalEntry struct {
	Event  string // "join" or "leave"
	WireID uint16
	Addr   string
	At     time.Time
}

// JournalWriter persists a batch of entries atomically.
type JournalWriter interface {
	WriteJournal(ctx context.Context, entries []JournalEntry) error
}

// JournalRepo writes the session_journal table.
type JournalRepo struct {
	db         *DB
	serverName string
}

func NewJournalRepo(db *DB, serverName string) *JournalRepo {
	return &JournalRepo{db: db, serverName: serverName}
}

// WriteJournal inserts a batch of entries in a single transaction.
func (r *JournalRepo) WriteJournal(ctx context.Context, entries []JournalEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_journal (event, wire_id, remote_addr, server_name, occurred_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			e.Event, int32(e.WireID), e.Addr, r.serverName, e.At,
		); err != nil {
			return fmt.Errorf("journal insert: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const (
	journalBatch    = 64
	journalInterval = time.Second
)

// SessionJournal queues lifecycle events from any goroutine and writes them
// in batches from its own worker. Record calls never block: when the queue
// is full the entry is counted and dropped.
type SessionJournal struct {
	w       JournalWriter
	ch      chan JournalEntry
	dropped atomic.Int64
	done    chan struct{}
	log     *zap.Logger
}

func NewSessionJournal(w JournalWriter, queueSize int, log *zap.Logger) *SessionJournal {
	return &SessionJournal{
		w:    w,
		ch:   make(chan JournalEntry, queueSize),
		done: make(chan struct{}),
		log:  log,
	}
}

func (j *SessionJournal) RecordJoin(id uint16, addr string)  { j.record("join", id, addr) }
func (j *SessionJournal) RecordLeave(id uint16, addr string) { j.record("leave", id, addr) }

func (j *SessionJournal) record(event string, id uint16, addr string) {
	select {
	case j.ch <- JournalEntry{Event: event, WireID: id, Addr: addr, At: time.Now()}:
	default:
		if j.dropped.Add(1)%100 == 1 {
			j.log.Warn("session journal queue full, dropping entries", zap.Int64("dropped", j.dropped.Load()))
		}
	}
}

// Dropped returns how many entries were lost to a full queue.
func (j *SessionJournal) Dropped() int64 { return j.dropped.Load() }

// Run writes batches until ctx is cancelled, then flushes what is queued.
func (j *SessionJournal) Run(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(journalInterval)
	defer ticker.Stop()

	batch := make([]JournalEntry, 0, journalBatch)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := j.w.WriteJournal(ctx, batch); err != nil {
			j.log.Error("session journal write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-j.ch:
			batch = append(batch, e)
			if len(batch) >= journalBatch {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			for {
				select {
				case e := <-j.ch:
					batch = append(batch, e)
				default:
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					flush(shutdownCtx)
					cancel()
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (j *SessionJournal) Wait() {
	<-j.done
}
