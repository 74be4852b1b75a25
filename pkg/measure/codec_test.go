package measure

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullBuffer(t *testing.T, capacity int) *CallMetrics {
	t.Helper()
	cm, err := New(capacity)
	require.NoError(t, err)
	for i := 0; i < capacity; i++ {
		f := float64(i)
		cm.Insert(NewRecord(1700000000+f, f*0.1, f*0.2, f*0.3, f*0.4, f*0.5, uint32(i/2), uint32(i%5)))
	}
	return cm
}

func TestSnapshotRoundTrip(t *testing.T) {
	cm := fullBuffer(t, 32)

	data, err := cm.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, headerSize+int(numFields)+32*recordSize)

	loaded, err := UnmarshalBinary(data)
	require.NoError(t, err)
	assert.Equal(t, 32, loaded.Capacity())
	assert.Equal(t, uint64(32), loaded.Index())
	assert.Equal(t, cm.View().Rows(), loaded.View().Rows())
}

func TestSnapshotOfWrappedBufferKeepsLogicalOrder(t *testing.T) {
	cm, err := New(3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		cm.Insert(failedRow(float64(i), uint32(i)))
	}

	var buf bytes.Buffer
	_, err = cm.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3, 4}, loaded.View().FailedCalls())
}

func TestSaveAndLoadFile(t *testing.T) {
	cm := fullBuffer(t, 8)
	path := filepath.Join(t.TempDir(), "metrics.fsmb")

	require.NoError(t, cm.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded.Title())
	assert.Equal(t, cm.View().Rows(), loaded.View().Rows())

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveEmptyBufferFails(t *testing.T) {
	cm, err := New(4)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "empty.fsmb")

	assert.ErrorIs(t, cm.SaveFile(path), ErrEmptyView)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDecodeRejectsShapeMismatch(t *testing.T) {
	good, err := fullBuffer(t, 4).MarshalBinary()
	require.NoError(t, err)

	corrupt := func(f func(b []byte) []byte) []byte {
		b := append([]byte(nil), good...)
		return f(b)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"bad magic", corrupt(func(b []byte) []byte { b[0] = 'X'; return b })},
		{"version", corrupt(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:], 9); return b })},
		{"field count", corrupt(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[6:], 7); return b })},
		{"record size", corrupt(func(b []byte) []byte { binary.LittleEndian.PutUint32(b[8:], 48); return b })},
		{"field kind", corrupt(func(b []byte) []byte { b[headerSize] = kindUint32; return b })},
		{"truncated rows", corrupt(func(b []byte) []byte { return b[:len(b)-3] })},
		{"trailing bytes", corrupt(func(b []byte) []byte { return append(b, 0) })},
		{"forged row count", corrupt(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[12:], math.MaxUint32)
			return b[:headerSize+int(numFields)]
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalBinary(tt.data)
			assert.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestDecodeShortHeader(t *testing.T) {
	_, err := UnmarshalBinary([]byte("FSMB"))
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.fsmb"))
	assert.True(t, os.IsNotExist(err))
}
