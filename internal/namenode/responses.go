package namenode

import (
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/pkg/binary"
)

const responseHeaderSize = 4

// ResponseHeader is the [int16 type][int16 error] prefix of every response.
type ResponseHeader struct {
	Type  Command
	Error int16
}

// Err reports a non-zero error code as *Error.
func (h *ResponseHeader) Err() error {
	return codeErr(h.Error)
}

func (h *ResponseHeader) Payload() *binary.Buffer { return nil }

func (h *ResponseHeader) put(buf *binary.Buffer) {
	buf.PutShort(int16(h.Type))
	buf.PutShort(h.Error)
}

func (h *ResponseHeader) get(buf *binary.Buffer) {
	h.Type = Command(buf.GetShort())
	h.Error = buf.GetShort()
}

// Response is implemented by every metadata response.
type Response interface {
	binary.Record
	Payload() *binary.Buffer
	Err() error
	Header() *ResponseHeader
}

func (h *ResponseHeader) Header() *ResponseHeader { return h }

type CreateResponse struct {
	ResponseHeader
	File        models.FileInfo
	Parent      models.FileInfo
	FileBlock   models.BlockInfo
	ParentBlock models.BlockInfo
}

func (r *CreateResponse) Size() int {
	return responseHeaderSize + 2*models.FileInfoSize + 2*models.BlockInfoSize
}

func (r *CreateResponse) Write(buf *binary.Buffer) error {
	r.put(buf)
	for _, rec := range []binary.Record{&r.File, &r.Parent, &r.FileBlock, &r.ParentBlock} {
		if err := rec.Write(buf); err != nil {
			return err
		}
	}
	return buf.Err()
}

func (r *CreateResponse) Update(buf *binary.Buffer) error {
	r.get(buf)
	for _, rec := range []binary.Record{&r.File, &r.Parent, &r.FileBlock, &r.ParentBlock} {
		if err := rec.Update(buf); err != nil {
			return err
		}
	}
	return buf.Err()
}

type LookupResponse struct {
	ResponseHeader
	File      models.FileInfo
	FileBlock models.BlockInfo
}

func (r *LookupResponse) Size() int {
	return responseHeaderSize + models.FileInfoSize + models.BlockInfoSize
}

func (r *LookupResponse) Write(buf *binary.Buffer) error {
	r.put(buf)
	if err := r.File.Write(buf); err != nil {
		return err
	}
	return r.FileBlock.Write(buf)
}

func (r *LookupResponse) Update(buf *binary.Buffer) error {
	r.get(buf)
	if err := r.File.Update(buf); err != nil {
		return err
	}
	return r.FileBlock.Update(buf)
}

// VoidResponse carries only the header.
type VoidResponse struct {
	ResponseHeader
}

func (r *VoidResponse) Size() int { return responseHeaderSize }

func (r *VoidResponse) Write(buf *binary.Buffer) error {
	r.put(buf)
	return buf.Err()
}

func (r *VoidResponse) Update(buf *binary.Buffer) error {
	r.get(buf)
	return buf.Err()
}

type RemoveResponse struct {
	ResponseHeader
	File   models.FileInfo
	Parent models.FileInfo
}

func (r *RemoveResponse) Size() int {
	return responseHeaderSize + 2*models.FileInfoSize
}

func (r *RemoveResponse) Write(buf *binary.Buffer) error {
	r.put(buf)
	if err := r.File.Write(buf); err != nil {
		return err
	}
	return r.Parent.Write(buf)
}

func (r *RemoveResponse) Update(buf *binary.Buffer) error {
	r.get(buf)
	if err := r.File.Update(buf); err != nil {
		return err
	}
	return r.Parent.Update(buf)
}

// GetBlockResponse repeats the error code after the block.
type GetBlockResponse struct {
	ResponseHeader
	Block  models.BlockInfo
	Status int16
}

func (r *GetBlockResponse) Size() int {
	return responseHeaderSize + models.BlockInfoSize + 2
}

func (r *GetBlockResponse) Err() error {
	if err := r.ResponseHeader.Err(); err != nil {
		return err
	}
	return codeErr(r.Status)
}

func (r *GetBlockResponse) Write(buf *binary.Buffer) error {
	r.put(buf)
	if err := r.Block.Write(buf); err != nil {
		return err
	}
	buf.PutShort(r.Status)
	return buf.Err()
}

func (r *GetBlockResponse) Update(buf *binary.Buffer) error {
	r.get(buf)
	if err := r.Block.Update(buf); err != nil {
		return err
	}
	r.Status = buf.GetShort()
	return buf.Err()
}

type IoctlResponse struct {
	ResponseHeader
	Op    IoctlOp
	Count int64
}

func (r *IoctlResponse) Size() int { return responseHeaderSize + 1 + 8 }

func (r *IoctlResponse) Write(buf *binary.Buffer) error {
	r.put(buf)
	buf.PutByte(uint8(r.Op))
	buf.PutLong(r.Count)
	return buf.Err()
}

func (r *IoctlResponse) Update(buf *binary.Buffer) error {
	r.get(buf)
	r.Op = IoctlOp(buf.GetByte())
	r.Count = buf.GetLong()
	return buf.Err()
}

// ResponseFor returns an empty response of the type cmd answers with, or nil
// for an unknown command.
func ResponseFor(cmd Command) Response {
	var resp Response
	switch cmd {
	case CmdCreate:
		resp = &CreateResponse{}
	case CmdLookup:
		resp = &LookupResponse{}
	case CmdSetFile:
		resp = &VoidResponse{}
	case CmdRemoveFile:
		resp = &RemoveResponse{}
	case CmdGetBlock:
		resp = &GetBlockResponse{}
	case CmdIoctl:
		resp = &IoctlResponse{}
	default:
		return nil
	}
	resp.Header().Type = cmd
	return resp
}
