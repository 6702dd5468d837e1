// Package archive provides a Pebble-backed durable log of raw broker
// frames, so the mqtt history survives a restart of the in-memory
// pipeline.
package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// Record is one archived broker frame.
type Record struct {
	Topic    string    `json:"topic"`
	Payload  []byte    `json:"payload"`
	Received time.Time `json:"received"`
}

// Archive is a Pebble LSM-tree backed frame log. Keys are the receipt
// timestamp in nanoseconds plus a process-local sequence number, so
// iteration order is arrival order.
type Archive struct {
	db     *pebble.DB
	path   string
	logger *zap.Logger
	seq    atomic.Uint32
}

// Open opens (or creates) the archive database at path.
func Open(path string, logger *zap.Logger) (*Archive, error) {
	opts := &pebble.Options{
		Logger: &pebbleLogger{logger},
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open %s: %w", path, err)
	}
	logger.Info("Frame archive opened", zap.String("path", path))
	return &Archive{db: db, path: path, logger: logger}, nil
}

// Close flushes and closes the database.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Put appends one raw frame. The write is synchronous so an archived
// frame is durable once Put returns.
func (a *Archive) Put(topic string, payload []byte, received time.Time) error {
	rec := Record{Topic: topic, Payload: payload, Received: received}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := a.db.Set(a.nextKey(received), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// Recent returns up to n most recent frames, newest first.
func (a *Archive) Recent(n int) ([]Record, error) {
	iter, err := a.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	var records []Record
	for ok := iter.Last(); ok && len(records) < n; ok = iter.Prev() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal frame: %w", err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of archived frames.
func (a *Archive) Count() (int, error) {
	iter, err := a.db.NewIter(nil)
	if err != nil {
		return 0, fmt.Errorf("pebble iter: %w", err)
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return count, nil
}

// nextKey builds a 12-byte key: big-endian receipt nanoseconds plus a
// sequence counter to keep same-instant frames distinct.
func (a *Archive) nextKey(received time.Time) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key[:8], uint64(received.UnixNano()))
	binary.BigEndian.PutUint32(key[8:], a.seq.Add(1))
	return key
}

// pebbleLogger adapts zap to pebble's logger interface.
type pebbleLogger struct {
	logger *zap.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Sugar().Debugf(format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Sugar().Errorf(format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Sugar().Fatalf(format, args...)
}
