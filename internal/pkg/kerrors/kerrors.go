package kerrors

import "strconv"

// Metadata service error codes, carried as int16 in every response header.
const (
	OK                int16 = 0
	Unknown           int16 = 1
	ProtocolMismatch  int16 = 2
	InvalidCommand    int16 = 3
	ParentMissing     int16 = 4
	FileExists        int16 = 5
	FileNotFound      int16 = 6
	AddBlockFailed    int16 = 8
	CreateFailed      int16 = 9
	NotADirectory     int16 = 10
	PositionNegative  int16 = 11
	TokenMismatch     int16 = 12
	DirectoryNotEmpty int16 = 13
	NoFreeBlocks      int16 = 14
	InvalidIoctl      int16 = 15
)

var messages = map[int16]string{
	OK:                "ok",
	Unknown:           "unknown error",
	ProtocolMismatch:  "protocol mismatch",
	InvalidCommand:    "invalid command",
	ParentMissing:     "parent directory missing",
	FileExists:        "file exists",
	FileNotFound:      "file not found",
	AddBlockFailed:    "failed to add block",
	CreateFailed:      "create failed",
	NotADirectory:     "not a directory",
	PositionNegative:  "position negative",
	TokenMismatch:     "token mismatch",
	DirectoryNotEmpty: "directory not empty",
	NoFreeBlocks:      "no free blocks",
	InvalidIoctl:      "invalid ioctl",
}

// Message returns a human-readable description of code.
func Message(code int16) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "error code " + strconv.Itoa(int(code))
}
