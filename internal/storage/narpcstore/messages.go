package narpcstore

import (
	"fmt"

	"github.com/S1riyS/pocketfs/pkg/binary"
)

const (
	RequestRead  int32 = 1
	RequestWrite int32 = 2
)

type Request interface {
	binary.Record
	Payload() *binary.Buffer
	Type() int32
}

// WriteRequest carries Data's [position, limit) as the frame payload. The
// length is sent twice.
type WriteRequest struct {
	Key     int32
	Address int64
	Length  int32
	Data    *binary.Buffer
}

func (r *WriteRequest) Type() int32             { return RequestWrite }
func (r *WriteRequest) Payload() *binary.Buffer { return r.Data }
func (r *WriteRequest) Size() int               { return 24 }

func (r *WriteRequest) Write(buf *binary.Buffer) error {
	buf.PutInt(RequestWrite)
	buf.PutInt(r.Key)
	buf.PutLong(r.Address)
	buf.PutInt(r.Length)
	buf.PutInt(r.Length)
	return buf.Err()
}

func (r *WriteRequest) Update(buf *binary.Buffer) error {
	if t := buf.GetInt(); t != RequestWrite && buf.Err() == nil {
		return fmt.Errorf("storage request type %d, want write", t)
	}
	r.Key = buf.GetInt()
	r.Address = buf.GetLong()
	r.Length = buf.GetInt()
	if again := buf.GetInt(); again != r.Length && buf.Err() == nil {
		return fmt.Errorf("write length mismatch: %d vs %d", r.Length, again)
	}
	return buf.Err()
}

type ReadRequest struct {
	Key     int32
	Address int64
	Length  int32
}

func (r *ReadRequest) Type() int32             { return RequestRead }
func (r *ReadRequest) Payload() *binary.Buffer { return nil }
func (r *ReadRequest) Size() int               { return 20 }

func (r *ReadRequest) Write(buf *binary.Buffer) error {
	buf.PutInt(RequestRead)
	buf.PutInt(r.Key)
	buf.PutLong(r.Address)
	buf.PutInt(r.Length)
	return buf.Err()
}

func (r *ReadRequest) Update(buf *binary.Buffer) error {
	if t := buf.GetInt(); t != RequestRead && buf.Err() == nil {
		return fmt.Errorf("storage request type %d, want read", t)
	}
	r.Key = buf.GetInt()
	r.Address = buf.GetLong()
	r.Length = buf.GetInt()
	return buf.Err()
}

// DecodeRequest decodes a read or write request. For a write, Data is left
// wrapping the payload that follows the body in buf.
func DecodeRequest(buf *binary.Buffer) (Request, error) {
	start := buf.Position()
	t := buf.GetInt()
	if err := buf.Err(); err != nil {
		return nil, err
	}
	buf.SetPosition(start)

	switch t {
	case RequestRead:
		req := &ReadRequest{}
		if err := decode(buf, req); err != nil {
			return nil, err
		}
		return req, nil
	case RequestWrite:
		req := &WriteRequest{}
		if err := decode(buf, req); err != nil {
			return nil, err
		}
		data, err := buf.Slice(int(req.Length))
		if err != nil {
			return nil, fmt.Errorf("write payload: %w", err)
		}
		req.Data = binary.Wrap(data)
		return req, nil
	default:
		return nil, fmt.Errorf("unknown storage request type %d", t)
	}
}

func decode(buf *binary.Buffer, rec binary.Record) error {
	if buf.Remaining() < rec.Size() {
		return fmt.Errorf("storage request of %d bytes, need %d", buf.Remaining(), rec.Size())
	}
	return binary.Decode(buf, rec)
}

// Response status. Any non-zero Error is a failure.
const (
	StatusOK    int32 = 0
	StatusError int32 = 1
)

type WriteResponse struct {
	Error   int32
	Type    int32
	Written int32
}

func (r *WriteResponse) Payload() *binary.Buffer { return nil }
func (r *WriteResponse) Size() int               { return 12 }

func (r *WriteResponse) Write(buf *binary.Buffer) error {
	buf.PutInt(r.Error)
	buf.PutInt(r.Type)
	buf.PutInt(r.Written)
	return buf.Err()
}

func (r *WriteResponse) Update(buf *binary.Buffer) error {
	r.Error = buf.GetInt()
	r.Type = buf.GetInt()
	r.Written = buf.GetInt()
	return buf.Err()
}

// ReadResponse receives its payload straight into Data.
type ReadResponse struct {
	Error  int32
	Type   int32
	Length int32
	Data   *binary.Buffer
}

func (r *ReadResponse) Payload() *binary.Buffer { return r.Data }
func (r *ReadResponse) Size() int               { return 12 }

func (r *ReadResponse) Write(buf *binary.Buffer) error {
	buf.PutInt(r.Error)
	buf.PutInt(r.Type)
	buf.PutInt(r.Length)
	return buf.Err()
}

func (r *ReadResponse) Update(buf *binary.Buffer) error {
	r.Error = buf.GetInt()
	r.Type = buf.GetInt()
	r.Length = buf.GetInt()
	return buf.Err()
}
