package namenode

import (
	"fmt"

	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/narpc"
	"github.com/S1riyS/pocketfs/pkg/binary"
)

const requestHeaderSize = 4

// Request is a metadata request as seen by the server.
type Request interface {
	narpc.Message
	Command() Command
}

func writeRequestHeader(buf *binary.Buffer, cmd Command) {
	buf.PutShort(int16(cmd))
	buf.PutShort(int16(cmd))
}

func readRequestHeader(buf *binary.Buffer, want Command) error {
	cmd := Command(buf.GetShort())
	typ := Command(buf.GetShort())
	if err := buf.Err(); err != nil {
		return err
	}
	if cmd != want || typ != want {
		return fmt.Errorf("%w: expected %s, got cmd=%d type=%d", ErrProtocolMismatch, want, cmd, typ)
	}
	return nil
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

type CreateRequest struct {
	Filename      models.Filename
	Type          models.NodeType
	StorageClass  int32
	LocationClass int32
	Enumerable    bool
}

func (r *CreateRequest) Command() Command        { return CmdCreate }
func (r *CreateRequest) Payload() *binary.Buffer { return nil }
func (r *CreateRequest) Size() int               { return requestHeaderSize + models.FilenameSize + 16 }

func (r *CreateRequest) Write(buf *binary.Buffer) error {
	writeRequestHeader(buf, CmdCreate)
	if err := r.Filename.Write(buf); err != nil {
		return err
	}
	buf.PutInt(int32(r.Type))
	buf.PutInt(r.StorageClass)
	buf.PutInt(r.LocationClass)
	buf.PutInt(boolInt(r.Enumerable))
	return buf.Err()
}

func (r *CreateRequest) Update(buf *binary.Buffer) error {
	if err := readRequestHeader(buf, CmdCreate); err != nil {
		return err
	}
	if err := r.Filename.Update(buf); err != nil {
		return err
	}
	r.Type = models.NodeType(buf.GetInt())
	r.StorageClass = buf.GetInt()
	r.LocationClass = buf.GetInt()
	r.Enumerable = buf.GetInt() != 0
	return buf.Err()
}

type LookupRequest struct {
	Filename models.Filename
}

func (r *LookupRequest) Command() Command        { return CmdLookup }
func (r *LookupRequest) Payload() *binary.Buffer { return nil }
func (r *LookupRequest) Size() int               { return requestHeaderSize + models.FilenameSize + 4 }

func (r *LookupRequest) Write(buf *binary.Buffer) error {
	writeRequestHeader(buf, CmdLookup)
	if err := r.Filename.Write(buf); err != nil {
		return err
	}
	buf.PutInt(0)
	return buf.Err()
}

func (r *LookupRequest) Update(buf *binary.Buffer) error {
	if err := readRequestHeader(buf, CmdLookup); err != nil {
		return err
	}
	if err := r.Filename.Update(buf); err != nil {
		return err
	}
	buf.GetInt()
	return buf.Err()
}

type SetFileRequest struct {
	File  models.FileInfo
	Close bool
}

func (r *SetFileRequest) Command() Command        { return CmdSetFile }
func (r *SetFileRequest) Payload() *binary.Buffer { return nil }
func (r *SetFileRequest) Size() int               { return requestHeaderSize + models.FileInfoSize + 4 }

func (r *SetFileRequest) Write(buf *binary.Buffer) error {
	writeRequestHeader(buf, CmdSetFile)
	if err := r.File.Write(buf); err != nil {
		return err
	}
	buf.PutInt(boolInt(r.Close))
	return buf.Err()
}

func (r *SetFileRequest) Update(buf *binary.Buffer) error {
	if err := readRequestHeader(buf, CmdSetFile); err != nil {
		return err
	}
	if err := r.File.Update(buf); err != nil {
		return err
	}
	r.Close = buf.GetInt() != 0
	return buf.Err()
}

type RemoveRequest struct {
	Filename  models.Filename
	Recursive bool
}

func (r *RemoveRequest) Command() Command        { return CmdRemoveFile }
func (r *RemoveRequest) Payload() *binary.Buffer { return nil }
func (r *RemoveRequest) Size() int               { return requestHeaderSize + models.FilenameSize + 4 }

func (r *RemoveRequest) Write(buf *binary.Buffer) error {
	writeRequestHeader(buf, CmdRemoveFile)
	if err := r.Filename.Write(buf); err != nil {
		return err
	}
	buf.PutInt(boolInt(r.Recursive))
	return buf.Err()
}

func (r *RemoveRequest) Update(buf *binary.Buffer) error {
	if err := readRequestHeader(buf, CmdRemoveFile); err != nil {
		return err
	}
	if err := r.Filename.Update(buf); err != nil {
		return err
	}
	r.Recursive = buf.GetInt() != 0
	return buf.Err()
}

type GetBlockRequest struct {
	FD       int64
	Token    int64
	Position int64
	Capacity int64
}

func (r *GetBlockRequest) Command() Command        { return CmdGetBlock }
func (r *GetBlockRequest) Payload() *binary.Buffer { return nil }
func (r *GetBlockRequest) Size() int               { return requestHeaderSize + 32 }

func (r *GetBlockRequest) Write(buf *binary.Buffer) error {
	writeRequestHeader(buf, CmdGetBlock)
	buf.PutLong(r.FD)
	buf.PutLong(r.Token)
	buf.PutLong(r.Position)
	buf.PutLong(r.Capacity)
	return buf.Err()
}

func (r *GetBlockRequest) Update(buf *binary.Buffer) error {
	if err := readRequestHeader(buf, CmdGetBlock); err != nil {
		return err
	}
	r.FD = buf.GetLong()
	r.Token = buf.GetLong()
	r.Position = buf.GetLong()
	r.Capacity = buf.GetLong()
	return buf.Err()
}

type IoctlRequest struct {
	Op       IoctlOp
	Filename models.Filename
}

func (r *IoctlRequest) Command() Command        { return CmdIoctl }
func (r *IoctlRequest) Payload() *binary.Buffer { return nil }
func (r *IoctlRequest) Size() int               { return requestHeaderSize + 1 + models.FilenameSize }

func (r *IoctlRequest) Write(buf *binary.Buffer) error {
	writeRequestHeader(buf, CmdIoctl)
	buf.PutByte(uint8(r.Op))
	if err := r.Filename.Write(buf); err != nil {
		return err
	}
	return buf.Err()
}

func (r *IoctlRequest) Update(buf *binary.Buffer) error {
	if err := readRequestHeader(buf, CmdIoctl); err != nil {
		return err
	}
	r.Op = IoctlOp(buf.GetByte())
	if err := r.Filename.Update(buf); err != nil {
		return err
	}
	return buf.Err()
}

// DecodeRequest reads the command prefix and decodes the matching request.
// An unknown command yields ErrInvalidCommand with the command value.
func DecodeRequest(buf *binary.Buffer) (Request, error) {
	if buf.Remaining() < requestHeaderSize {
		return nil, fmt.Errorf("%w: request of %d bytes", ErrProtocolMismatch, buf.Remaining())
	}
	start := buf.Position()
	cmd := Command(buf.GetShort())
	buf.SetPosition(start)

	var req Request
	switch cmd {
	case CmdCreate:
		req = &CreateRequest{}
	case CmdLookup:
		req = &LookupRequest{}
	case CmdSetFile:
		req = &SetFileRequest{}
	case CmdRemoveFile:
		req = &RemoveRequest{}
	case CmdGetBlock:
		req = &GetBlockRequest{}
	case CmdIoctl:
		req = &IoctlRequest{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, cmd)
	}

	if buf.Remaining() < req.Size() {
		return nil, fmt.Errorf("%w: %s request needs %d bytes, got %d", ErrProtocolMismatch, cmd, req.Size(), buf.Remaining())
	}
	if err := binary.Decode(buf, req); err != nil {
		return nil, fmt.Errorf("decode %s request: %w", cmd, err)
	}
	return req, nil
}
