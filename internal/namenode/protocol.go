// Package namenode speaks the metadata service protocol: typed requests and
// responses over a narpc connection.
package namenode

import (
	"fmt"

	"github.com/S1riyS/pocketfs/internal/pkg/kerrors"
)

// Command selects the operation. It is sent as both cmd and type in the
// request prefix and echoed as type in the response prefix.
type Command int16

const (
	CmdCreate     Command = 1
	CmdLookup     Command = 2
	CmdSetFile    Command = 3
	CmdRemoveFile Command = 4
	CmdGetBlock   Command = 6
	CmdIoctl      Command = 13
)

func (c Command) String() string {
	switch c {
	case CmdCreate:
		return "create"
	case CmdLookup:
		return "lookup"
	case CmdSetFile:
		return "setfile"
	case CmdRemoveFile:
		return "remove"
	case CmdGetBlock:
		return "getblock"
	case CmdIoctl:
		return "ioctl"
	default:
		return fmt.Sprintf("Command(%d)", int16(c))
	}
}

type IoctlOp uint8

const (
	IoctlNop            IoctlOp = 1
	IoctlDatanodeRemove IoctlOp = 2
	IoctlClassStat      IoctlOp = 3
	IoctlSetWeightMask  IoctlOp = 4
	IoctlCountFiles     IoctlOp = 5
)

// Error is a non-zero code returned by the metadata service.
type Error struct {
	Code int16
}

func (e *Error) Error() string {
	return fmt.Sprintf("namenode: %s (code %d)", kerrors.Message(e.Code), e.Code)
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnknown          = &Error{Code: kerrors.Unknown}
	ErrProtocolMismatch = &Error{Code: kerrors.ProtocolMismatch}
	ErrInvalidCommand   = &Error{Code: kerrors.InvalidCommand}
	ErrParentMissing    = &Error{Code: kerrors.ParentMissing}
	ErrExists           = &Error{Code: kerrors.FileExists}
	ErrNotFound         = &Error{Code: kerrors.FileNotFound}
	ErrAddBlockFailed   = &Error{Code: kerrors.AddBlockFailed}
	ErrCreateFailed     = &Error{Code: kerrors.CreateFailed}
	ErrNotDirectory     = &Error{Code: kerrors.NotADirectory}
	ErrPositionNegative = &Error{Code: kerrors.PositionNegative}
	ErrTokenMismatch    = &Error{Code: kerrors.TokenMismatch}
	ErrNotEmpty         = &Error{Code: kerrors.DirectoryNotEmpty}
	ErrNoFreeBlocks     = &Error{Code: kerrors.NoFreeBlocks}
	ErrInvalidIoctl     = &Error{Code: kerrors.InvalidIoctl}
)

func codeErr(code int16) error {
	if code == kerrors.OK {
		return nil
	}
	return &Error{Code: code}
}
