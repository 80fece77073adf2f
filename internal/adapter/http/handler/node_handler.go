package handler

import (
	"net/http"

	"github.com/iho/satledger/internal/adapter/http/dto"
	"github.com/iho/satledger/internal/domain"
)

// NodeStatus reports the health of the backing nodes.
type NodeStatus interface {
	Nodes() []domain.NodeConnection
}

// NodeHandler exposes node health.
type NodeHandler struct {
	nodes NodeStatus
}

// NewNodeHandler creates a new NodeHandler.
func NewNodeHandler(nodes NodeStatus) *NodeHandler {
	return &NodeHandler{nodes: nodes}
}

// Health lists every configured node with its current state.
func (h *NodeHandler) Health(w http.ResponseWriter, r *http.Request) {
	nodes := h.nodes.Nodes()

	active := 0
	for _, n := range nodes {
		if n.Active {
			active++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active": active,
		"total":  len(nodes),
		"nodes":  dto.NodesFromDomain(nodes),
	})
}
