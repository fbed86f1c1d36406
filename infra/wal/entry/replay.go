package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
)

type ReplayHandler func(*Record) error

var errCorruptFrame = errors.New("wal: corrupt frame")

// Replay feeds every intact record to fn in sequence order and returns
// the highest sequence seen. A torn or corrupt frame at the tail of
// the newest segment ends replay cleanly: a crash mid-append leaves
// exactly that shape, and the record was never acknowledged. The same
// damage anywhere else is reported as an error.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	for i, path := range files {
		last := i == len(files)-1
		f, err := os.Open(path)
		if err != nil {
			return lastSeq, err
		}

		for {
			rec, err := readRecord(f)
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = f.Close()
				if last && (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errCorruptFrame)) {
					return lastSeq, nil
				}
				return lastSeq, fmt.Errorf("replay %s: %w", path, err)
			}

			if rec.Seq <= lastSeq {
				_ = f.Close()
				return lastSeq, fmt.Errorf("replay %s: non-monotonic seq %d", path, rec.Seq)
			}
			lastSeq = rec.Seq

			if err := fn(rec); err != nil {
				_ = f.Close()
				return lastSeq, err
			}
		}
		_ = f.Close()
	}

	return lastSeq, nil
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	t := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := binary.BigEndian.Uint64(header[9:17])
	l := binary.BigEndian.Uint32(header[17:21])

	data := make([]byte, l+4)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	payload := data[:l]
	sum := binary.BigEndian.Uint32(data[l:])

	if crc32.ChecksumIEEE(append(header, payload...)) != sum {
		return nil, errCorruptFrame
	}

	return &Record{
		Type: t,
		Seq:  seq,
		Time: int64(ts),
		Data: payload,
	}, nil
}
