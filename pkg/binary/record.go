package binary

import "fmt"

// Record is implemented by every protocol message and metadata record.
//
// Write serializes the record at the buffer's position without changing the
// record. Update overwrites the record from the buffer, advancing the
// position by exactly Size bytes. Size must be exact: outgoing frames and
// incoming body regions are sized from it before any byte is moved.
type Record interface {
	Write(buf *Buffer) error
	Update(buf *Buffer) error
	Size() int
}

// Encode writes rec to buf and checks that exactly Size bytes were produced.
// A mismatch is a bug in the record and panics.
func Encode(buf *Buffer, rec Record) error {
	start := buf.Position()
	if err := rec.Write(buf); err != nil {
		return err
	}
	if n := buf.Position() - start; n != rec.Size() {
		panic(fmt.Sprintf("binary: %T wrote %d bytes but reports Size() %d", rec, n, rec.Size()))
	}
	return nil
}

// Decode updates rec from buf and checks that exactly Size bytes were consumed.
func Decode(buf *Buffer, rec Record) error {
	start := buf.Position()
	if err := rec.Update(buf); err != nil {
		return err
	}
	if n := buf.Position() - start; n != rec.Size() {
		panic(fmt.Sprintf("binary: %T read %d bytes but reports Size() %d", rec, n, rec.Size()))
	}
	return nil
}
