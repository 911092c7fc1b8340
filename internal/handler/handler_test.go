package handler_test

import (
	"context"
	"testing"

	"github.com/S1riyS/pocketfs/internal/handler"
	"github.com/S1riyS/pocketfs/internal/models"
	"github.com/S1riyS/pocketfs/internal/namenode"
	"github.com/S1riyS/pocketfs/internal/pkg/kerrors"
	"github.com/S1riyS/pocketfs/internal/repository/memory"
	"github.com/S1riyS/pocketfs/internal/service"
	"github.com/S1riyS/pocketfs/pkg/binary"
	"github.com/S1riyS/pocketfs/pkg/logging"
)

func newHandler(t *testing.T) (*handler.Handler, context.Context) {
	t.Helper()

	ctx := logging.MakeContextWithLogger(context.Background(), logging.Discard())
	db := memory.New()
	svc := service.NewNamespaceService(db, db.Inodes(), db.Blocks(), db.Datanodes())

	info, err := models.NewDatanodeInfo("127.0.0.1:7000", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.RegisterDatanode(ctx, &models.Datanode{Info: info, Capacity: 16 * models.BlockSize}); err != nil {
		t.Fatal(err)
	}
	return handler.NewHandler(svc), ctx
}

func serve(t *testing.T, ctx context.Context, h *handler.Handler, req namenode.Request) namenode.Response {
	t.Helper()

	buf := binary.NewBuffer(req.Size())
	if err := binary.Encode(buf, req); err != nil {
		t.Fatal(err)
	}
	return serveRaw(t, ctx, h, buf.Flip())
}

func serveRaw(t *testing.T, ctx context.Context, h *handler.Handler, buf *binary.Buffer) namenode.Response {
	t.Helper()

	msg, err := h.ServeNaRPC(ctx, buf)
	if err != nil {
		t.Fatalf("ServeNaRPC: %v", err)
	}
	resp, ok := msg.(namenode.Response)
	if !ok {
		t.Fatalf("ServeNaRPC returned %T", msg)
	}
	return resp
}

func filename(t *testing.T, p string) models.Filename {
	t.Helper()
	f, err := models.ParseFilename(p)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestHandler_CreateThenLookup(t *testing.T) {
	h, ctx := newHandler(t)

	resp := serve(t, ctx, h, &namenode.CreateRequest{Filename: filename(t, "/f"), Type: models.NodeTypeFile, Enumerable: true})
	created, ok := resp.(*namenode.CreateResponse)
	if !ok {
		t.Fatalf("create answered with %T", resp)
	}
	if created.Type != namenode.CmdCreate || created.Error != kerrors.OK {
		t.Fatalf("create header = %+v", created.ResponseHeader)
	}

	resp = serve(t, ctx, h, &namenode.LookupRequest{Filename: filename(t, "/f")})
	found := resp.(*namenode.LookupResponse)
	if found.Err() != nil || found.File.FD != created.File.FD || found.FileBlock != created.FileBlock {
		t.Errorf("lookup = %+v, want fd %d", found, created.File.FD)
	}

	resp = serve(t, ctx, h, &namenode.IoctlRequest{Op: namenode.IoctlCountFiles, Filename: filename(t, "/")})
	if io := resp.(*namenode.IoctlResponse); io.Count != 1 || io.Op != namenode.IoctlCountFiles {
		t.Errorf("ioctl = %+v", io)
	}
}

func TestHandler_ErrorsKeepResponseShape(t *testing.T) {
	h, ctx := newHandler(t)

	resp := serve(t, ctx, h, &namenode.LookupRequest{Filename: filename(t, "/missing")})
	if _, ok := resp.(*namenode.LookupResponse); !ok {
		t.Fatalf("failed lookup answered with %T", resp)
	}
	if resp.Header().Type != namenode.CmdLookup || resp.Header().Error != kerrors.FileNotFound {
		t.Errorf("header = %+v", *resp.Header())
	}

	resp = serve(t, ctx, h, &namenode.GetBlockRequest{FD: 12345, Token: 1})
	gb, ok := resp.(*namenode.GetBlockResponse)
	if !ok {
		t.Fatalf("failed getblock answered with %T", resp)
	}
	if gb.Error != kerrors.FileNotFound || gb.Status != kerrors.FileNotFound {
		t.Errorf("getblock error=%d status=%d", gb.Error, gb.Status)
	}
}

func TestHandler_UnknownCommand(t *testing.T) {
	h, ctx := newHandler(t)

	buf := binary.NewBuffer(8)
	buf.PutShort(42)
	buf.PutShort(42)
	buf.PutInt(0)

	resp := serveRaw(t, ctx, h, buf.Flip())
	if _, ok := resp.(*namenode.VoidResponse); !ok {
		t.Fatalf("unknown command answered with %T", resp)
	}
	if resp.Header().Type != 42 || resp.Header().Error != kerrors.InvalidCommand {
		t.Errorf("header = %+v", *resp.Header())
	}
}

func TestHandler_TruncatedRequest(t *testing.T) {
	h, ctx := newHandler(t)

	buf := binary.NewBuffer(4)
	buf.PutShort(int16(namenode.CmdCreate))
	buf.PutShort(int16(namenode.CmdCreate))

	resp := serveRaw(t, ctx, h, buf.Flip())
	if _, ok := resp.(*namenode.CreateResponse); !ok {
		t.Fatalf("truncated create answered with %T", resp)
	}
	if resp.Header().Error != kerrors.ProtocolMismatch {
		t.Errorf("error = %d, want %d", resp.Header().Error, kerrors.ProtocolMismatch)
	}
}
