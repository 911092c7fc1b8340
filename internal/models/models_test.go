package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

func TestRecordSizes(t *testing.T) {
	tests := []struct {
		name string
		rec  binary.Record
		want int
	}{
		{"DatanodeInfo", &DatanodeInfo{}, 20},
		{"BlockInfo", &BlockInfo{}, 44},
		{"FileInfo", &FileInfo{}, 44},
		{"Filename", &Filename{}, 68},
		{"DirectoryRecord", &DirectoryRecord{Valid: 1, Name: "abc"}, 11},
	}

	for _, tt := range tests {
		data, err := binary.Marshal(tt.rec, binary.BigEndian)
		if err != nil {
			t.Fatalf("%s: Marshal: %v", tt.name, err)
		}
		if len(data) != tt.want {
			t.Errorf("%s: encoded %d bytes, want %d", tt.name, len(data), tt.want)
		}
	}
}

func TestBlockInfo_RoundTrip(t *testing.T) {
	in := BlockInfo{
		Datanode: DatanodeInfo{StorageType: 2, StorageClass: 1, LocationClass: 3, IP: [4]byte{10, 0, 0, 7}, Port: 50020},
		LBA:      128,
		Addr:     65536,
		Length:   BlockSize,
		LKey:     -9,
	}

	data, err := binary.Marshal(&in, binary.BigEndian)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out BlockInfo
	if err := binary.Unmarshal(data, &out, binary.BigEndian); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestDatanodeInfo_KeyAndAddress(t *testing.T) {
	dn, err := NewDatanodeInfo("10.1.2.3:50020", 1, 0)
	if err != nil {
		t.Fatalf("NewDatanodeInfo: %v", err)
	}

	if got, want := dn.Key(), int64(0x0A010203)<<32|50020; got != want {
		t.Errorf("Key = %#x, want %#x", got, want)
	}
	if got := dn.Address(); got != "10.1.2.3:50020" {
		t.Errorf("Address = %q", got)
	}

	other := dn
	other.Port++
	if other.Key() == dn.Key() {
		t.Error("distinct ports share a key")
	}

	if _, err := NewDatanodeInfo("[::1]:80", 0, 0); err == nil {
		t.Error("IPv6 endpoint accepted")
	}
	if _, err := NewDatanodeInfo("no-port", 0, 0); err == nil {
		t.Error("address without port accepted")
	}
}

func TestHashComponent(t *testing.T) {
	tests := []struct {
		in   string
		want int32
	}{
		{"", 0},
		{"a", 97},
		{"ab", 31*97 + 98},
		{"hello", 99162322},
		// wraps like a 32-bit two's complement integer
		{"polygenelubricants", -2147483648},
	}

	for _, tt := range tests {
		if got := HashComponent(tt.in); got != tt.want {
			t.Errorf("HashComponent(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseFilename(t *testing.T) {
	f, err := ParseFilename("/dir/sub/file.txt")
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if f.Length != 3 || f.Name != "file.txt" {
		t.Fatalf("Length=%d Name=%q", f.Length, f.Name)
	}
	if f.Components[0] != HashComponent("dir") || f.Component() != HashComponent("file.txt") {
		t.Errorf("components = %v", f.Components[:3])
	}
	for i := 3; i < DirectoryDepth; i++ {
		if f.Components[i] != 0 {
			t.Errorf("unused slot %d = %d, want 0", i, f.Components[i])
		}
	}

	parent := f.Parent()
	if parent.Length != 2 || parent.Component() != HashComponent("sub") {
		t.Errorf("Parent = %+v", parent)
	}

	root, err := ParseFilename("/")
	if err != nil || !root.IsRoot() {
		t.Errorf("ParseFilename(/) = %+v, %v", root, err)
	}
}

func TestParseFilename_Errors(t *testing.T) {
	deep := strings.Repeat("/d", DirectoryDepth+1)
	if _, err := ParseFilename(deep); !errors.Is(err, ErrPathTooDeep) {
		t.Errorf("depth %d: err = %v, want ErrPathTooDeep", DirectoryDepth+1, err)
	}
	if _, err := ParseFilename(strings.Repeat("/d", DirectoryDepth)); err != nil {
		t.Errorf("depth %d rejected: %v", DirectoryDepth, err)
	}
	if _, err := ParseFilename("relative/path"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("relative path: err = %v, want ErrInvalidPath", err)
	}
}

func TestDecodeDirectorySlot(t *testing.T) {
	live := make([]byte, DirRecordSize)
	buf := binary.Wrap(live)
	if err := binary.Encode(buf, &DirectoryRecord{Valid: 1, Name: "report.csv"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	tomb := make([]byte, DirRecordSize)
	if err := binary.Encode(binary.Wrap(tomb), &DirectoryRecord{Valid: 0, Name: "gone"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	garbage := make([]byte, DirRecordSize)
	copy(garbage, []byte{0, 0, 0, 1, 0x7f, 0, 0, 0})

	tests := []struct {
		name      string
		slot      []byte
		wantOK    bool
		wantValid int32
		wantName  string
	}{
		{"live", live, true, 1, "report.csv"},
		{"tombstone", tomb, true, 0, "gone"},
		{"never written", make([]byte, DirRecordSize), false, 0, ""},
		{"implausible length", garbage, false, 0, ""},
		{"implausible flag", []byte{0, 0, 0, 9, 0, 0, 0, 0}, false, 0, ""},
		{"short slot", []byte{0, 0}, false, 0, ""},
	}

	for _, tt := range tests {
		rec, ok := DecodeDirectorySlot(tt.slot)
		if ok != tt.wantOK {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if ok && (rec.Valid != tt.wantValid || rec.Name != tt.wantName) {
			t.Errorf("%s: rec = %+v", tt.name, rec)
		}
	}
}

func TestDirectoryRecord_NameTooLong(t *testing.T) {
	rec := &DirectoryRecord{Valid: 1, Name: strings.Repeat("x", DirRecordSize)}
	if err := rec.Write(binary.NewBuffer(2 * DirRecordSize)); err == nil {
		t.Error("oversized name encoded")
	}
}
