package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the resource layer.
var (
	// ErrIntegrity indicates corrupted hierarchy data (cycle or orphan).
	ErrIntegrity = errors.New("resource: data integrity")
	// ErrNotFound indicates that the requested node does not exist.
	ErrNotFound = errors.New("resource: not found")
	// ErrUnknownKind indicates an unrecognized resource kind.
	ErrUnknownKind = errors.New("resource: unknown kind")
	// ErrDuplicate indicates a sibling with the same name already exists.
	ErrDuplicate = errors.New("resource: duplicate node")
	// ErrHasChildren rejects deleting a node that still has children.
	ErrHasChildren = errors.New("resource: node has children")
)

// Kind identifies one hierarchical resource category.
type Kind string

// Supported resource kinds.
const (
	KindOrganization Kind = "organization"
	KindMenu         Kind = "menu"
	KindAPI          Kind = "api"
)

// Kinds lists every supported resource kind.
func Kinds() []Kind {
	return []Kind{KindOrganization, KindMenu, KindAPI}
}

// ParseKind validates a kind received over the wire.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindOrganization:
		return KindOrganization, nil
	case KindMenu:
		return KindMenu, nil
	case KindAPI:
		return KindAPI, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
}

// Status marks a node as usable or administratively disabled.
type Status string

// Node statuses.
const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// ParseStatus validates a status filter received over the wire.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusEnabled:
		return StatusEnabled, nil
	case StatusDisabled:
		return StatusDisabled, nil
	default:
		return "", fmt.Errorf("resource: unknown status %q", raw)
	}
}

// Record is one flat adjacency-list row as stored. ParentID zero means root.
// Code carries the permission code for api nodes and is empty elsewhere.
type Record struct {
	ID        int64
	ParentID  int64
	Name      string
	Status    Status
	SortOrder int
	Code      string
}

// Node is one assembled tree entry. Leaf is derived during assembly.
type Node struct {
	ID        int64   `json:"id"`
	ParentID  int64   `json:"parentId"`
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	SortOrder int     `json:"sortOrder"`
	Leaf      bool    `json:"isLeaf"`
	Children  []*Node `json:"children"`
}
