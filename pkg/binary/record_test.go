package binary

import "testing"

type pair struct {
	a int32
	b int64
}

func (p *pair) Write(buf *Buffer) error {
	buf.PutInt(p.a)
	buf.PutLong(p.b)
	return buf.Err()
}

func (p *pair) Update(buf *Buffer) error {
	p.a = buf.GetInt()
	p.b = buf.GetLong()
	return buf.Err()
}

func (p *pair) Size() int { return 12 }

// lying reports a size that does not match what it writes.
type lying struct{ pair }

func (l *lying) Size() int { return 8 }

func TestMarshalUnmarshal(t *testing.T) {
	in := &pair{a: -3, b: 1 << 40}
	data, err := Marshal(in, LittleEndian)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) != in.Size() {
		t.Fatalf("len = %d, want %d", len(data), in.Size())
	}

	var out pair
	if err := Unmarshal(data, &out, LittleEndian); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != *in {
		t.Errorf("round trip = %+v, want %+v", out, *in)
	}
}

func TestUnmarshal_ShortInput(t *testing.T) {
	var out pair
	if err := Unmarshal([]byte{1, 2, 3}, &out, BigEndian); err == nil {
		t.Fatal("Unmarshal of truncated input succeeded")
	}
}

func TestEncode_SizeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Encode of record with wrong Size did not panic")
		}
	}()
	_ = Encode(NewBuffer(32), &lying{})
}
