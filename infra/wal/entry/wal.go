package entry

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEvery forces an fsync after every append when true. Off by
	// default: the OS page cache is the durability point, matching the
	// at-least-once contract of the trade outbox downstream.
	SyncEvery bool
}

const defaultSegmentSize = 64 << 20

// WAL is an append-only segmented log of order intents. Frames are
// CRC-protected; segments rotate by size and are truncated as a whole
// once a snapshot covers them. Safe for concurrent appenders: the
// segment offset and the rotation swap happen under one mutex.
type WAL struct {
	mu         sync.Mutex
	dir        string
	segSize    int64
	syncEvery  bool
	current    *segment
	segIndex   int
	lastRotate time.Time
}

func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}

	// Continue in the newest existing segment rather than clobbering
	// segment zero on every restart.
	idx, err := newestSegmentIndex(cfg.Dir)
	if err != nil {
		return nil, err
	}

	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		syncEvery:  cfg.SyncEvery,
		current:    seg,
		segIndex:   idx,
		lastRotate: time.Now(),
	}, nil
}

func newestSegmentIndex(dir string) (int, error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, path := range files {
		name := filepath.Base(path)
		name = strings.TrimPrefix(name, "segment-")
		name = strings.TrimSuffix(name, ".wal")
		if n, err := strconv.Atoi(name); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

func (w *WAL) Append(r *Record) error {
	payloadLen := uint32(len(r.Data))

	w.mu.Lock()
	defer w.mu.Unlock()

	// Frame:
	// [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf := make([]byte, frameHeaderSize+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[frameHeaderSize:], r.Data)

	crc := crc32.ChecksumIEEE(buf[:frameHeaderSize+payloadLen])
	binary.BigEndian.PutUint32(buf[frameHeaderSize+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		return err
	}
	if w.syncEvery {
		if err := w.current.sync(); err != nil {
			return err
		}
	}

	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

const frameHeaderSize = 1 + 8 + 8 + 4

func (w *WAL) rotate() error {
	_ = w.current.sync()
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// Sync flushes the current segment to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.current.sync()
	return w.current.close()
}

// TruncateBefore removes whole segments whose highest sequence is at or
// below seq. The current segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := listSegments(w.dir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	current := filepath.Join(w.dir, segmentName(w.segIndex))
	w.mu.Unlock()
	for _, path := range files {
		if path == current {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}
