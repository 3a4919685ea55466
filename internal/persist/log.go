// Package persist implements spec.md §6's base-table persistence: an
// append-only sequence of log segments per base table, named
// `{dir}/{prefix}-{base}.{seg}`, rotated on size, with three modes
// (Persistent, DeleteOnExit, MemoryOnly).
//
// Grounded on the teacher's private/kvstore/boltdb package (its test
// file is the only surviving piece of the retrieval pack —
// `private/kvstore/boltdb/client_test.go` — since the implementation
// itself was not retrieved, but the test fixes the shape: `New(path,
// bucket) (*Client, error)` with a `Close` that the deferred cleanup
// calls) adapted from a single mutable KV store into a segment log:
// the active segment is a `boltdb/bolt` database opened read-write,
// and every archived (rotated-out) segment is reopened read-only via
// `coreos/bbolt` during recovery, giving both teacher-carried bolt
// forks a distinct role instead of picking one arbitrarily (mirrors
// SPEC_FULL.md's DOMAIN STACK §4.11 persistence entry).
package persist

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/coreos/bbolt"

	"storj.io/flowdb/pkg/record"
)

// Mode selects a base table's durability.
type Mode int

const (
	// Persistent retains every segment across restarts.
	Persistent Mode = iota
	// DeleteOnExit behaves like Persistent while running, but Close
	// removes every segment file for this base.
	DeleteOnExit
	// MemoryOnly never touches disk; Append and Replay are no-ops.
	MemoryOnly
)

var recordsBucket = []byte("records")

// Log is one base table's append-only segment sequence.
type Log struct {
	dir, prefix, base string
	mode              Mode
	maxSegBytes       int64
	flushInterval     time.Duration

	mu      sync.Mutex
	seg     int
	active  *bolt.DB
	written int64
	lastSeq uint64
}

// Open returns a Log for base, resuming the highest-numbered existing
// segment if one is found (recovery after a restart), or starting a
// fresh segment 0 otherwise. maxSegBytes <= 0 disables size-based
// rotation.
func Open(dir, prefix, base string, mode Mode, maxSegBytes int64, flushInterval time.Duration) (*Log, error) {
	l := &Log{
		dir:           dir,
		prefix:        prefix,
		base:          base,
		mode:          mode,
		maxSegBytes:   maxSegBytes,
		flushInterval: flushInterval,
	}
	if mode == MemoryOnly {
		return l, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: mkdir %s: %w", dir, err)
	}
	l.seg = l.latestSegment()
	if err := l.openActive(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) segmentPath(seg int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.%d", l.prefix, l.base, seg))
}

// latestSegment scans dir for this base's highest existing segment
// number, or 0 if none exist yet.
func (l *Log) latestSegment() int {
	highest := 0
	for seg := 0; ; seg++ {
		if _, err := os.Stat(l.segmentPath(seg)); err != nil {
			break
		}
		highest = seg
	}
	return highest
}

func (l *Log) openActive() error {
	_, statErr := os.Stat(l.segmentPath(l.seg))
	existed := statErr == nil
	db, err := bolt.Open(l.segmentPath(l.seg), 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("persist: open segment %d: %w", l.seg, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	}); err != nil {
		db.Close()
		return fmt.Errorf("persist: init segment %d: %w", l.seg, err)
	}
	// a freshly created segment counts as empty: bolt's own file overhead
	// is not record bytes, and counting it would rotate on every append.
	l.written = 0
	if existed {
		if fi, err := os.Stat(l.segmentPath(l.seg)); err == nil {
			l.written = fi.Size()
		}
	}
	l.active = db
	return nil
}

// Append durably writes every record in batch to the active segment,
// rotating to a fresh segment first if this write would exceed
// maxSegBytes. A no-op in MemoryOnly mode.
func (l *Log) Append(batch record.Batch) error {
	if l.mode == MemoryOnly || len(batch) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	encoded := make([][]byte, len(batch))
	var size int64
	for i, rec := range batch {
		data, err := rec.Marshal()
		if err != nil {
			return fmt.Errorf("persist: encode record: %w", err)
		}
		encoded[i] = data
		size += int64(len(data))
	}

	if l.maxSegBytes > 0 && l.written > 0 && l.written+size > l.maxSegBytes {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	err := l.active.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		for _, data := range encoded {
			l.lastSeq++
			if err := b.Put(itob(l.lastSeq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: append: %w", err)
	}
	l.written += size
	return nil
}

// rotate closes the active segment and opens the next one. Callers
// must hold l.mu.
func (l *Log) rotate() error {
	if l.active != nil {
		if err := l.active.Close(); err != nil {
			return fmt.Errorf("persist: close segment %d: %w", l.seg, err)
		}
	}
	l.seg++
	l.written = 0
	return l.openActive()
}

// Replay reads every record across every segment, in write order, and
// calls fn for each. Archived (non-active) segments are opened
// read-only through coreos/bbolt so recovery never contends with an
// in-progress write on the active segment. A no-op in MemoryOnly mode.
func (l *Log) Replay(fn func(record.Record) error) error {
	if l.mode == MemoryOnly {
		return nil
	}

	l.mu.Lock()
	seg, activeSeg := l.seg, l.seg
	l.mu.Unlock()

	for s := 0; s <= seg; s++ {
		var err error
		if s == activeSeg {
			err = l.replayActive(fn)
		} else {
			err = l.replayArchived(s, fn)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *Log) replayActive(fn func(record.Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.View(func(tx *bolt.Tx) error {
		return forEachRecord(tx.Bucket(recordsBucket), fn)
	})
}

func (l *Log) replayArchived(seg int, fn func(record.Record) error) error {
	db, err := bbolt.Open(l.segmentPath(seg), 0o444, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("persist: open archived segment %d: %w", seg, err)
	}
	defer db.Close()
	return db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, data []byte) error {
			var rec record.Record
			if err := rec.Unmarshal(data); err != nil {
				return fmt.Errorf("persist: decode record: %w", err)
			}
			return fn(rec)
		})
	})
}

func forEachRecord(bucket *bolt.Bucket, fn func(record.Record) error) error {
	if bucket == nil {
		return nil
	}
	return bucket.ForEach(func(_, data []byte) error {
		var rec record.Record
		if err := rec.Unmarshal(data); err != nil {
			return fmt.Errorf("persist: decode record: %w", err)
		}
		return fn(rec)
	})
}

// Close closes the active segment. In DeleteOnExit mode it then
// removes every segment file this Log ever wrote.
func (l *Log) Close() error {
	if l.mode == MemoryOnly {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active != nil {
		if err := l.active.Close(); err != nil {
			return err
		}
	}
	if l.mode != DeleteOnExit {
		return nil
	}
	for s := 0; s <= l.seg; s++ {
		if err := os.Remove(l.segmentPath(s)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func itob(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
