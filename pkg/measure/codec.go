package measure

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Snapshot layout, little-endian:
//
//	magic "FSMB" | version u16 | fields u16 | record size u32 | rows u32
//	field kinds, one byte per field
//	rows, each field in layout order
const (
	formatVersion = 1
	headerSize    = 16
	recordSize    = 6*8 + 2*4

	maxPrealloc = 1 << 16

	kindFloat64 byte = 1
	kindUint32  byte = 2
)

var magic = [4]byte{'F', 'S', 'M', 'B'}

func fieldKinds() []byte {
	kinds := make([]byte, numFields)
	for i := range kinds {
		if Field(i).IsCounter() {
			kinds[i] = kindUint32
		} else {
			kinds[i] = kindFloat64
		}
	}
	return kinds
}

// WriteTo encodes the buffer's current view. It implements io.WriterTo.
func (cm *CallMetrics) WriteTo(w io.Writer) (int64, error) {
	return cm.View().WriteTo(w)
}

// WriteTo encodes the rows of the view. It implements io.WriterTo.
func (v *View) WriteTo(w io.Writer) (int64, error) {
	if len(v.rows) == 0 {
		return 0, fmt.Errorf("encode snapshot: %w", ErrEmptyView)
	}
	if uint64(len(v.rows)) > math.MaxUint32 {
		return 0, fmt.Errorf("encode snapshot: %d rows exceed format limit", len(v.rows))
	}

	bw := bufio.NewWriter(w)
	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], formatVersion)
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(numFields))
	binary.LittleEndian.PutUint32(hdr[8:12], recordSize)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(v.rows)))
	bw.Write(hdr[:])
	bw.Write(fieldKinds())

	var rec [recordSize]byte
	for _, r := range v.rows {
		encodeRecord(rec[:], r)
		bw.Write(rec[:])
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	return int64(headerSize + int(numFields) + len(v.rows)*recordSize), nil
}

// MarshalBinary encodes the buffer's current view.
func (cm *CallMetrics) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := cm.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot into a fully populated buffer whose capacity is the
// stored row count. A layout that differs from Record fails with
// ErrShapeMismatch.
func Decode(r io.Reader, opts ...Option) (*CallMetrics, error) {
	br := bufio.NewReader(r)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if !bytes.Equal(hdr[0:4], magic[:]) {
		return nil, fmt.Errorf("bad magic %q: %w", hdr[0:4], ErrShapeMismatch)
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d: %w", v, ErrShapeMismatch)
	}
	if n := binary.LittleEndian.Uint16(hdr[6:8]); n != uint16(numFields) {
		return nil, fmt.Errorf("snapshot has %d fields, want %d: %w", n, numFields, ErrShapeMismatch)
	}
	if size := binary.LittleEndian.Uint32(hdr[8:12]); size != recordSize {
		return nil, fmt.Errorf("snapshot record size %d, want %d: %w", size, recordSize, ErrShapeMismatch)
	}
	count := binary.LittleEndian.Uint32(hdr[12:16])
	if count == 0 {
		return nil, fmt.Errorf("decode snapshot: %w", ErrEmptyView)
	}

	kinds := make([]byte, numFields)
	if _, err := io.ReadFull(br, kinds); err != nil {
		return nil, fmt.Errorf("read field layout: %w", err)
	}
	if !bytes.Equal(kinds, fieldKinds()) {
		return nil, fmt.Errorf("field layout %v, want %v: %w", kinds, fieldKinds(), ErrShapeMismatch)
	}

	// count comes from the file; rows grow only as they are actually read
	rows := make([]Record, 0, min(count, maxPrealloc))
	var rec [recordSize]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, rec[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("snapshot truncated at row %d of %d: %w", i, count, ErrShapeMismatch)
			}
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		rows = append(rows, decodeRecord(rec[:]))
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after %d rows: %w", count, ErrShapeMismatch)
	}

	return FromRecords(rows, opts...)
}

// UnmarshalBinary is Decode over a byte slice.
func UnmarshalBinary(data []byte, opts ...Option) (*CallMetrics, error) {
	return Decode(bytes.NewReader(data), opts...)
}

// SaveFile writes the buffer to path. The file is replaced only after the
// whole snapshot has been written.
func (cm *CallMetrics) SaveFile(path string) error {
	data, err := cm.MarshalBinary()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadFile reads a snapshot written by SaveFile. The buffer is titled with path.
func LoadFile(path string, opts ...Option) (*CallMetrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cm, err := Decode(f, append(opts, WithTitle(path))...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cm, nil
}

func encodeRecord(b []byte, r Record) {
	le := binary.LittleEndian
	le.PutUint64(b[0:], math.Float64bits(r.Time))
	le.PutUint64(b[8:], math.Float64bits(r.InviteLatency))
	le.PutUint64(b[16:], math.Float64bits(r.AnswerLatency))
	le.PutUint64(b[24:], math.Float64bits(r.CallSetupLatency))
	le.PutUint64(b[32:], math.Float64bits(r.OriginateLatency))
	le.PutUint64(b[40:], math.Float64bits(r.OriginateToInviteLatency))
	le.PutUint32(b[48:], r.NumFailedCalls)
	le.PutUint32(b[52:], r.NumSessions)
}

func decodeRecord(b []byte) Record {
	le := binary.LittleEndian
	return Record{
		Time:                     math.Float64frombits(le.Uint64(b[0:])),
		InviteLatency:            math.Float64frombits(le.Uint64(b[8:])),
		AnswerLatency:            math.Float64frombits(le.Uint64(b[16:])),
		CallSetupLatency:         math.Float64frombits(le.Uint64(b[24:])),
		OriginateLatency:         math.Float64frombits(le.Uint64(b[32:])),
		OriginateToInviteLatency: math.Float64frombits(le.Uint64(b[40:])),
		NumFailedCalls:           le.Uint32(b[48:]),
		NumSessions:              le.Uint32(b[52:]),
	}
}
