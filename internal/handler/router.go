package handler

import "github.com/S1riyS/pocketfs/internal/namenode"

func (h *Handler) registerRoutes() map[namenode.Command]route {
	return map[namenode.Command]route{
		namenode.CmdCreate:     h.handleCreate,
		namenode.CmdLookup:     h.handleLookup,
		namenode.CmdSetFile:    h.handleSetFile,
		namenode.CmdRemoveFile: h.handleRemove,
		namenode.CmdGetBlock:   h.handleGetBlock,
		namenode.CmdIoctl:      h.handleIoctl,
	}
}
