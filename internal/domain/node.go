package domain

import (
	"fmt"
	"time"
)

// NodeRole is what a backing node may be used for.
type NodeRole string

const (
	NodeRoleReceiveOnly NodeRole = "receive-only"
	NodeRoleSendCapable NodeRole = "send-capable"
	NodeRoleBoth        NodeRole = "both"
)

// ParseNodeRole converts a configured role name.
func ParseNodeRole(s string) (NodeRole, error) {
	switch r := NodeRole(s); r {
	case NodeRoleReceiveOnly, NodeRoleSendCapable, NodeRoleBoth:
		return r, nil
	case "":
		return NodeRoleBoth, nil
	default:
		return "", fmt.Errorf("unknown node role %q", s)
	}
}

// CanSend reports whether payments may be dispatched through the node.
func (r NodeRole) CanSend() bool {
	return r == NodeRoleSendCapable || r == NodeRoleBoth
}

// CanReceive reports whether invoices may be created on the node.
func (r NodeRole) CanReceive() bool {
	return r == NodeRoleReceiveOnly || r == NodeRoleBoth
}

// Allows reports whether a node with this role serves the wanted role.
func (r NodeRole) Allows(want NodeRole) bool {
	switch want {
	case NodeRoleSendCapable:
		return r.CanSend()
	case NodeRoleReceiveOnly:
		return r.CanReceive()
	default:
		return r == NodeRoleBoth
	}
}

// NodeState is the liveness state tracked by the health monitor.
type NodeState string

const (
	NodeStateUnknown  NodeState = "unknown"
	NodeStateActive   NodeState = "active"
	NodeStateInactive NodeState = "inactive"
)

// NodeConnection is a configured backing Lightning node.
type NodeConnection struct {
	ID          string
	Host        string
	Role        NodeRole
	State       NodeState
	Active      bool
	LastChecked time.Time
}

// NodeEventKind is the kind of a node status transition.
type NodeEventKind string

const (
	NodeEventStarted NodeEventKind = "started"
	NodeEventStopped NodeEventKind = "stopped"
)

// NodeStatusEvent is emitted when a node changes between active and inactive.
type NodeStatusEvent struct {
	NodeID string
	Kind   NodeEventKind
	At     time.Time
}
