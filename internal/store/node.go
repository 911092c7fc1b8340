package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
)

// Node is a resolved file or directory.
type Node interface {
	Path() string
	Info() models.FileInfo
}

type node struct {
	store *Store
	path  string
	info  models.FileInfo
}

func (n *node) Path() string          { return n.path }
func (n *node) Info() models.FileInfo { return n.info }

type File struct {
	node
}

// OutputStream writes the file from the start. Closing it sets the file's
// capacity to the number of bytes written.
func (f *File) OutputStream() *OutputStream {
	return newOutputStream(f.store, f.info, 0)
}

func (f *File) InputStream() *InputStream {
	return newInputStream(f.store, f.info, 0)
}

type Directory struct {
	node
}

// Enumerate lists the names of live entries. Tombstoned and unreadable slots
// are skipped.
func (d *Directory) Enumerate(ctx context.Context) ([]string, error) {
	const op = "store.Directory.Enumerate"

	slots := d.info.Capacity / models.DirRecordSize
	in := newInputStream(d.store, d.info, 0)
	buf := binary.NewBuffer(models.DirRecordSize)

	var names []string
	for i := int64(0); i < slots; i++ {
		buf.Clear()
		_, err := in.ReadFull(ctx, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		rec, ok := models.DecodeDirectorySlot(buf.Flip().Bytes())
		if ok && rec.Valid == 1 {
			names = append(names, rec.Name)
		}
	}

	logging.GetLoggerFromContextWithOp(ctx, op).Debug("Enumerated", slog.String("path", d.path), slog.Int64("slots", slots), slog.Int("entries", len(names)))
	return names, nil
}
