package models

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf16"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

const FilenameSize = 4 + DirectoryDepth*4

var (
	ErrPathTooDeep = errors.New("path deeper than 16 components")
	ErrInvalidPath = errors.New("path must be absolute")
)

// Filename is a path encoded as per-component hashes. Only the hashes travel
// on the wire; Name keeps the final component for directory records.
type Filename struct {
	Length     int32
	Components [DirectoryDepth]int32
	Name       string
}

// ParseFilename hashes every component of an absolute, slash-separated path.
// "/" parses to a zero-length filename naming the root.
func ParseFilename(p string) (Filename, error) {
	if !strings.HasPrefix(p, "/") {
		return Filename{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}

	p = path.Clean(p)
	if p == "/" {
		return Filename{}, nil
	}

	parts := strings.Split(p[1:], "/")
	if len(parts) > DirectoryDepth {
		return Filename{}, fmt.Errorf("%w: %q has %d", ErrPathTooDeep, p, len(parts))
	}

	var f Filename
	for i, part := range parts {
		f.Components[i] = HashComponent(part)
	}
	f.Length = int32(len(parts))
	f.Name = parts[len(parts)-1]

	return f, nil
}

// HashComponent is h = 31*h + c over the UTF-16 code units of name, with
// 32-bit wraparound.
func HashComponent(name string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(name)) {
		h = 31*h + int32(c)
	}
	return h
}

// Component returns the hash of the last component, or 0 for the root.
func (f Filename) Component() int32 {
	if f.Length == 0 {
		return 0
	}
	return f.Components[f.Length-1]
}

// Parent returns the containing directory. The parent's Name is unknown and
// left empty.
func (f Filename) Parent() Filename {
	if f.Length == 0 {
		return f
	}
	p := Filename{Length: f.Length - 1}
	copy(p.Components[:p.Length], f.Components[:p.Length])
	return p
}

func (f Filename) IsRoot() bool {
	return f.Length == 0
}

func (f *Filename) Write(buf *binary.Buffer) error {
	buf.PutInt(f.Length)
	for _, c := range f.Components {
		buf.PutInt(c)
	}
	return buf.Err()
}

func (f *Filename) Update(buf *binary.Buffer) error {
	f.Length = buf.GetInt()
	for i := range f.Components {
		f.Components[i] = buf.GetInt()
	}
	if err := buf.Err(); err != nil {
		return err
	}
	if f.Length < 0 || f.Length > DirectoryDepth {
		return fmt.Errorf("%w: encoded length %d", ErrPathTooDeep, f.Length)
	}
	return nil
}

func (f *Filename) Size() int { return FilenameSize }
