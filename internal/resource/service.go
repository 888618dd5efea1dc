package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Store defines data access for resource records.
type Store interface {
	ListNodes(ctx context.Context, kind Kind) ([]Record, error)
	CountNodes(ctx context.Context, kind Kind) (int, error)
	CreateNode(ctx context.Context, kind Kind, rec Record) (Record, error)
	UpdateNode(ctx context.Context, kind Kind, rec Record) (Record, error)
	DeleteNode(ctx context.Context, kind Kind, id int64) error
}

// GrantReader looks up the leaf ids a role currently holds for one kind.
type GrantReader interface {
	Grant(ctx context.Context, roleID int64, kind Kind) (map[int64]struct{}, error)
}

// Service orchestrates tree reads and selection-set computation. All tree
// work is pure in-memory; the store is the only blocking collaborator.
type Service struct {
	store  Store
	grants GrantReader
}

// NewService constructs a resource service.
func NewService(store Store, grants GrantReader) *Service {
	return &Service{store: store, grants: grants}
}

// Tree loads the current snapshot of one kind and assembles the filtered
// forest.
func (s *Service) Tree(ctx context.Context, kind Kind, opts TreeOptions) ([]*Node, error) {
	records, err := s.store.ListNodes(ctx, kind)
	if err != nil {
		return nil, err
	}
	return BuildTree(records, opts)
}

// ExpandedKeys returns the non-leaf ids of the filtered forest.
func (s *Service) ExpandedKeys(ctx context.Context, kind Kind, opts TreeOptions) ([]int64, error) {
	forest, err := s.Tree(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	return ExpandedKeys(forest), nil
}

// CheckedKeys returns the fully covered ids for a role against the
// unfiltered snapshot of one kind.
func (s *Service) CheckedKeys(ctx context.Context, kind Kind, roleID int64) ([]int64, error) {
	forest, err := s.Tree(ctx, kind, TreeOptions{})
	if err != nil {
		return nil, err
	}
	granted, err := s.grants.Grant(ctx, roleID, kind)
	if err != nil {
		return nil, err
	}
	return CheckedKeys(forest, granted), nil
}

// LeafIDs returns the assignable ids of one kind's current snapshot.
func (s *Service) LeafIDs(ctx context.Context, kind Kind) (map[int64]struct{}, error) {
	forest, err := s.Tree(ctx, kind, TreeOptions{})
	if err != nil {
		return nil, err
	}
	return LeafIDs(forest), nil
}

// Summary reports record counts per kind, fetched in parallel.
func (s *Service) Summary(ctx context.Context) (map[Kind]int, error) {
	kinds := Kinds()
	counts := make([]int, len(kinds))
	g, ctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			count, err := s.store.CountNodes(ctx, kind)
			if err != nil {
				return err
			}
			counts[i] = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	summary := make(map[Kind]int, len(kinds))
	for i, kind := range kinds {
		summary[kind] = counts[i]
	}
	return summary, nil
}

// CreateNode validates and persists a new record.
func (s *Service) CreateNode(ctx context.Context, kind Kind, rec Record) (Record, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return Record{}, errors.New("resource: node name required")
	}
	if rec.Status == "" {
		rec.Status = StatusEnabled
	}
	if err := s.checkParent(ctx, kind, rec.ParentID, 0); err != nil {
		return Record{}, err
	}
	return s.store.CreateNode(ctx, kind, rec)
}

// UpdateNode validates and rewrites an existing record.
func (s *Service) UpdateNode(ctx context.Context, kind Kind, rec Record) (Record, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		return Record{}, errors.New("resource: node name required")
	}
	if rec.ParentID == rec.ID {
		return Record{}, fmt.Errorf("%w: node %d cannot parent itself", ErrIntegrity, rec.ID)
	}
	if err := s.checkParent(ctx, kind, rec.ParentID, rec.ID); err != nil {
		return Record{}, err
	}
	return s.store.UpdateNode(ctx, kind, rec)
}

// DeleteNode removes a childless record.
func (s *Service) DeleteNode(ctx context.Context, kind Kind, id int64) error {
	return s.store.DeleteNode(ctx, kind, id)
}

// checkParent ensures the requested parent exists and that reparenting
// self under one of its own descendants cannot introduce a cycle.
func (s *Service) checkParent(ctx context.Context, kind Kind, parentID, selfID int64) error {
	if parentID == 0 {
		return nil
	}
	records, err := s.store.ListNodes(ctx, kind)
	if err != nil {
		return err
	}
	index := make(map[int64]Record, len(records))
	for _, rec := range records {
		index[rec.ID] = rec
	}
	if _, ok := index[parentID]; !ok {
		return fmt.Errorf("%w: parent %d", ErrNotFound, parentID)
	}
	if selfID == 0 {
		return nil
	}
	// Walk up from the requested parent; hitting self means the move
	// would close a cycle.
	id := parentID
	for steps := 0; id != 0 && steps <= len(records); steps++ {
		if id == selfID {
			return fmt.Errorf("%w: node %d cannot move under its own descendant", ErrIntegrity, selfID)
		}
		id = index[id].ParentID
	}
	return nil
}
