package audit

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"os"

	"github.com/yanun0323/errors"

	"github.com/cz9874308/barter-rs/internal/schema"
)

// On-disk framing of the audit record stream:
// magic | version | header size | seq | time | payload len | crc32c,
// followed by the JSON-encoded tick. The checksum covers header and
// payload.
const (
	recordVersion    uint16 = 1
	recordHeaderSize        = 32
)

var (
	recordMagic = [4]byte{'A', 'U', 'D', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic       = errors.New("audit wal: invalid magic")
	ErrUnsupportedVersion = errors.New("audit wal: unsupported record version")
	ErrInvalidHeader      = errors.New("audit wal: invalid header")
	ErrChecksumMismatch   = errors.New("audit wal: checksum mismatch")
	ErrPayloadTooLarge    = errors.New("audit wal: payload exceeds limit")
)

// MaxPayloadSize bounds a single record payload.
const MaxPayloadSize = 16 << 20

func encodeHeader(dst []byte, seq schema.Sequence, timeEngine int64, payload []byte) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(seq))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(timeEngine))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(len(payload)))
	binary.LittleEndian.PutUint32(dst[28:32], 0)
	crc := crc32.Update(0, crcTable, dst[0:28])
	crc = crc32.Update(crc, crcTable, payload)
	binary.LittleEndian.PutUint32(dst[28:32], crc)
}

func decodeHeader(src []byte) (seq schema.Sequence, timeEngine int64, payloadLen int, crc uint32, err error) {
	if len(src) < recordHeaderSize {
		return 0, 0, 0, 0, ErrInvalidHeader
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return 0, 0, 0, 0, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint16(src[4:6]) != recordVersion {
		return 0, 0, 0, 0, ErrUnsupportedVersion
	}
	if binary.LittleEndian.Uint16(src[6:8]) != recordHeaderSize {
		return 0, 0, 0, 0, ErrInvalidHeader
	}
	seq = schema.Sequence(binary.LittleEndian.Uint64(src[8:16]))
	timeEngine = int64(binary.LittleEndian.Uint64(src[16:24]))
	payloadLen = int(binary.LittleEndian.Uint32(src[24:28]))
	crc = binary.LittleEndian.Uint32(src[28:32])
	return seq, timeEngine, payloadLen, crc, nil
}

// Writer appends audit ticks to an on-disk record stream.
type Writer struct {
	f   *os.File
	buf *bufio.Writer
	hdr [recordHeaderSize]byte
}

// NewWriter creates or truncates the file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open audit wal")
	}
	return &Writer{f: f, buf: bufio.NewWriterSize(f, 1<<16)}, nil
}

// Append serializes one tick and writes it framed to the stream.
func (w *Writer) Append(tick *Tick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return errors.Wrap(err, "marshal audit tick")
	}
	if len(payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	encodeHeader(w.hdr[:], tick.Seq, tick.TimeEngine, payload)
	if _, err := w.buf.Write(w.hdr[:]); err != nil {
		return errors.Wrap(err, "write audit header")
	}
	if _, err := w.buf.Write(payload); err != nil {
		return errors.Wrap(err, "write audit payload")
	}
	return nil
}

// Flush pushes buffered records to the file.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// Reader iterates an audit record stream.
type Reader struct {
	r   *bufio.Reader
	c   io.Closer
	hdr [recordHeaderSize]byte
}

// NewReader opens the record stream at path.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open audit wal")
	}
	return &Reader{r: bufio.NewReaderSize(f, 1<<16), c: f}, nil
}

// Next reads the next tick. io.EOF signals a clean end of stream.
func (r *Reader) Next() (*Tick, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read audit header")
	}
	_, _, payloadLen, wantCRC, err := decodeHeader(r.hdr[:])
	if err != nil {
		return nil, err
	}
	if payloadLen > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, errors.Wrap(err, "read audit payload")
	}

	hdrCopy := r.hdr
	binary.LittleEndian.PutUint32(hdrCopy[28:32], 0)
	crc := crc32.Update(0, crcTable, hdrCopy[0:28])
	crc = crc32.Update(crc, crcTable, payload)
	if crc != wantCRC {
		return nil, ErrChecksumMismatch
	}

	var tick Tick
	if err := json.Unmarshal(payload, &tick); err != nil {
		return nil, errors.Wrap(err, "unmarshal audit tick")
	}
	return &tick, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error { return r.c.Close() }
