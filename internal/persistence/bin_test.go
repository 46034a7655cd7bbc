package persistence

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecopia-map/octiler/internal/geometry"
	"github.com/ecopia-map/octiler/internal/points"
)

func sampleBuffer() *points.Buffer {
	schema := points.Schema{points.Position, points.Intensity, points.Classification}
	buf := points.NewBuffer(schema, 3)
	buf.Append(points.Record{Position: geometry.Vec3{1, 2, 3}, Intensity: 10, Classification: 2})
	buf.Append(points.Record{Position: geometry.Vec3{4, 5, 6}, Intensity: 20, Classification: 3})
	buf.Append(points.Record{Position: geometry.Vec3{7, 8, 9}, Intensity: 30, Classification: 4})
	return buf
}

func TestBinNodeStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := BinNodeStore{Dir: dir}
	buf := sampleBuffer()

	if err := store.WriteNode(dir, "r01", buf.Schema, buf); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "r01.bin")); err != nil {
		t.Fatalf("expected payload file to exist: %v", err)
	}

	got, err := store.ReadNode(dir, "r01", buf.Schema)
	if err != nil {
		t.Fatalf("ReadNode: %v", err)
	}
	if got.Len() != buf.Len() {
		t.Fatalf("expected %d points, got %d", buf.Len(), got.Len())
	}
	for i := 0; i < buf.Len(); i++ {
		want, have := buf.At(i), got.At(i)
		if want.Position != have.Position || want.Intensity != have.Intensity || want.Classification != have.Classification {
			t.Fatalf("record %d mismatch: want %+v, got %+v", i, want, have)
		}
	}
}

func TestBinNodeStoreRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	store := BinNodeStore{Dir: dir}
	buf := sampleBuffer()
	if err := store.WriteNode(dir, "r", buf.Schema, buf); err != nil {
		t.Fatalf("WriteNode: %v", err)
	}
	_, err := store.ReadNode(dir, "r", points.Schema{points.Position})
	if err == nil {
		t.Fatalf("expected an error reading back with a different schema")
	}
}

func TestEncodeBinHeaderIsSelfDescribing(t *testing.T) {
	buf := sampleBuffer()
	data, err := encodeBin(buf.Schema, buf)
	if err != nil {
		t.Fatalf("encodeBin: %v", err)
	}
	if got := binary.LittleEndian.Uint32(data[0:4]); got != binVersion {
		t.Fatalf("expected version %d in header, got %d", binVersion, got)
	}
	if got, want := binary.LittleEndian.Uint32(data[4:8]), uint32(len(buf.Schema)); got != want {
		t.Fatalf("expected attribute_count %d, got %d", want, got)
	}
	for i, attr := range buf.Schema {
		if got := data[8+i]; got != uint8(attr) {
			t.Fatalf("attribute id %d: expected %d, got %d", i, uint8(attr), got)
		}
	}
	pointCountOff := 8 + len(buf.Schema)
	if got := binary.LittleEndian.Uint64(data[pointCountOff : pointCountOff+8]); got != uint64(buf.Len()) {
		t.Fatalf("expected point_count %d, got %d", buf.Len(), got)
	}

	// decodeBin must read columns back using the attribute-id list it
	// recovered from the header itself, not a column order borrowed from
	// whatever schema value happens to be passed in.
	fresh := points.Schema{points.Position, points.Intensity, points.Classification}
	got, err := decodeBin(fresh, data)
	if err != nil {
		t.Fatalf("decodeBin: %v", err)
	}
	if got.Len() != buf.Len() {
		t.Fatalf("expected %d points, got %d", buf.Len(), got.Len())
	}
}

func TestWriteFileAtomicLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	if err := writeFileAtomic(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("writeFileAtomic: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.bin" {
		t.Fatalf("expected exactly one file named out.bin, got %v", entries)
	}
}
