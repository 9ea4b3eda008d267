package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	indexFile = "index.jsonl"

	// maxLineBytes bounds one ledger line when scanning shards.
	maxLineBytes = 1 * 1024 * 1024
)

var (
	// ErrChainBroken indicates verification found a record whose hash or
	// prev-hash link does not match the recomputed chain.
	ErrChainBroken = errors.New("audit chain broken")

	// ErrAppendFailed indicates an event could not be durably recorded.
	// Callers must treat this as fatal to the enclosing operation.
	ErrAppendFailed = errors.New("audit append failed")
)

// indexEntry is one line of the query mirror. The shard plus hash locate
// the full record.
type indexEntry struct {
	TS          time.Time `json:"ts"`
	EventType   string    `json:"event_type"`
	OperationID string    `json:"operation_id,omitempty"`
	Shard       string    `json:"shard"`
	Hash        string    `json:"hash"`
}

// Log is the on-disk ledger: month-sharded append-only JSONL files plus an
// index mirror for queries. The read-last-hash-then-append sequence is
// serialized by a single mutex; concurrent appends without it would fork
// the chain.
type Log struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastHash string
}

// Open creates or reopens a ledger rooted at dir, recovering the chain
// head from the newest shard.
func Open(dir string, logger *zap.Logger) (*Log, error) {
	if dir == "" {
		return nil, errors.New("audit directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	l := &Log{dir: dir, logger: logger, now: time.Now}
	last, err := l.recoverLastHash()
	if err != nil {
		return nil, err
	}
	l.lastHash = last
	return l, nil
}

// Append stamps, chains, and durably records one event, returning the
// event as written. Every recorded scrub, descrub, and denial passes
// through here exactly once.
func (l *Log) Append(ctx context.Context, e Event) (Event, error) {
	if e.EventType == "" {
		return Event{}, fmt.Errorf("%w: event type is required", ErrAppendFailed)
	}
	if e.TS.IsZero() {
		e.TS = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.PrevHash = l.lastHash
	canon, err := canonical(e)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	e.Hash = chainHash(e.PrevHash, canon)

	record, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	shard := shardName(e.TS)
	if err := appendLine(filepath.Join(l.dir, shard), record); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	// The shard holds the authoritative chain; once it has the record the
	// chain head moves forward even if the mirror write below fails.
	l.lastHash = e.Hash

	entry, err := json.Marshal(indexEntry{
		TS:          e.TS,
		EventType:   e.EventType,
		OperationID: e.OperationID,
		Shard:       shard,
		Hash:        e.Hash,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	if err := appendLine(filepath.Join(l.dir, indexFile), entry); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	l.logger.Debug("audit event appended",
		zap.String("event_type", e.EventType),
		zap.String("operation_id", e.OperationID),
		zap.String("shard", shard))
	return e, nil
}

// LastHash returns the current chain head.
func (l *Log) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Tail returns the newest n events, oldest first.
func (l *Log) Tail(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := l.readIndex()
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return l.resolve(entries)
}

// FindByOperation returns every event recorded for an operation, oldest
// first.
func (l *Log) FindByOperation(ctx context.Context, operationID string) ([]Event, error) {
	if operationID == "" {
		return nil, errors.New("operation id is required")
	}
	entries, err := l.readIndex()
	if err != nil {
		return nil, err
	}
	matched := entries[:0:0]
	for _, entry := range entries {
		if entry.OperationID == operationID {
			matched = append(matched, entry)
		}
	}
	return l.resolve(matched)
}

// Verify walks every shard in order as one continuous chain, recomputing
// each record's hash. It returns the number of verified records; a break
// anywhere is ErrChainBroken with the offending record's position.
func (l *Log) Verify(ctx context.Context) (int, error) {
	shards, err := l.shards()
	if err != nil {
		return 0, err
	}

	verified := 0
	prev := genesisHash
	for _, shard := range shards {
		err := scanShard(filepath.Join(l.dir, shard), func(line int, e Event) error {
			if e.PrevHash != prev {
				return fmt.Errorf("%w: %s line %d: prev_hash mismatch", ErrChainBroken, shard, line)
			}
			canon, err := canonical(e)
			if err != nil {
				return fmt.Errorf("%w: %s line %d: %v", ErrChainBroken, shard, line, err)
			}
			if got := chainHash(e.PrevHash, canon); got != e.Hash {
				return fmt.Errorf("%w: %s line %d: hash mismatch", ErrChainBroken, shard, line)
			}
			prev = e.Hash
			verified++
			return nil
		})
		if err != nil {
			return verified, err
		}
	}
	return verified, nil
}

// recoverLastHash reads the chain head back from the newest shard.
func (l *Log) recoverLastHash() (string, error) {
	shards, err := l.shards()
	if err != nil {
		return "", err
	}
	if len(shards) == 0 {
		return genesisHash, nil
	}

	last := genesisHash
	newest := shards[len(shards)-1]
	err = scanShard(filepath.Join(l.dir, newest), func(line int, e Event) error {
		last = e.Hash
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to recover chain head from %s: %w", newest, err)
	}
	return last, nil
}

// shards lists shard files sorted by name; the naming scheme makes that
// chronological order.
func (l *Log) shards() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(l.dir, "audit-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit shards: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	sort.Strings(names)
	return names, nil
}

func (l *Log) readIndex() ([]indexEntry, error) {
	f, err := os.Open(filepath.Join(l.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit index: %w", err)
	}
	defer f.Close()

	var entries []indexEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry indexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode audit index entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit index: %w", err)
	}
	return entries, nil
}

// resolve loads the full events behind index entries, reading each shard
// once.
func (l *Log) resolve(entries []indexEntry) ([]Event, error) {
	byShard := make(map[string]map[string]Event)
	for _, entry := range entries {
		if _, ok := byShard[entry.Shard]; ok {
			continue
		}
		events := make(map[string]Event)
		err := scanShard(filepath.Join(l.dir, entry.Shard), func(line int, e Event) error {
			events[e.Hash] = e
			return nil
		})
		if err != nil {
			return nil, err
		}
		byShard[entry.Shard] = events
	}

	out := make([]Event, 0, len(entries))
	for _, entry := range entries {
		e, ok := byShard[entry.Shard][entry.Hash]
		if !ok {
			return nil, fmt.Errorf("%w: index entry %s not found in %s", ErrChainBroken, entry.Hash, entry.Shard)
		}
		out = append(out, e)
	}
	return out, nil
}

// scanShard streams a shard's records through fn in file order.
func scanShard(path string, fn func(line int, e Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audit shard: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("%w: %s line %d: %v", ErrChainBroken, filepath.Base(path), lineNum, err)
		}
		if err := fn(lineNum, e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read audit shard: %w", err)
	}
	return nil
}

// appendLine durably appends one record to an append-only file.
func appendLine(path string, record []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(append(record, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	return nil
}

// shardName places an event in its month shard.
func shardName(ts time.Time) string {
	return "audit-" + ts.UTC().Format("200601") + ".jsonl"
}
