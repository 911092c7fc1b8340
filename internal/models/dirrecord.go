package models

import (
	"fmt"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

const maxDirNameLen = DirRecordSize - 8

// DirectoryRecord is one slot of a directory stream. Valid is 1 for a live
// entry and 0 for a tombstone.
type DirectoryRecord struct {
	Valid int32
	Name  string
}

func (r *DirectoryRecord) Write(buf *binary.Buffer) error {
	if len(r.Name) > maxDirNameLen {
		return fmt.Errorf("directory entry name is %d bytes, max %d", len(r.Name), maxDirNameLen)
	}
	buf.PutInt(r.Valid)
	buf.PutInt(int32(len(r.Name)))
	buf.PutBytes([]byte(r.Name))
	return buf.Err()
}

func (r *DirectoryRecord) Update(buf *binary.Buffer) error {
	valid := buf.GetInt()
	length := buf.GetInt()
	if err := buf.Err(); err != nil {
		return err
	}
	if length < 0 || int(length) > maxDirNameLen || int(length) > buf.Remaining() {
		return fmt.Errorf("implausible directory entry length %d", length)
	}
	name := make([]byte, length)
	buf.GetBytes(name)
	r.Valid = valid
	r.Name = string(name)
	return buf.Err()
}

func (r *DirectoryRecord) Size() int { return 8 + len(r.Name) }

// DecodeDirectorySlot decodes one DirRecordSize slot. Slots that were never
// written, or hold garbage, report ok=false rather than an error.
func DecodeDirectorySlot(slot []byte) (rec DirectoryRecord, ok bool) {
	buf := binary.Wrap(slot)
	valid := buf.GetInt()
	if buf.Err() != nil || (valid != 0 && valid != 1) {
		return DirectoryRecord{}, false
	}
	buf.SetPosition(0)
	if err := rec.Update(buf); err != nil {
		return DirectoryRecord{}, false
	}
	if rec.Valid == 0 && rec.Name == "" {
		// never written
		return DirectoryRecord{}, false
	}
	return rec, true
}
