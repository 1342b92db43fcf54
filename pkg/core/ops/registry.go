// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/gomlx/collectives/pkg/core/replicas"
	"github.com/gomlx/collectives/pkg/core/session"
	"github.com/pkg/errors"
)

// CreatorInfo holds everything a Creator needs to construct an op.
type CreatorInfo struct {
	ID         Identifier
	Attributes map[string]any
	Settings   Settings

	// Session holds the options of the enclosing session, in particular the total number of replicas.
	Session *session.Options
}

// Creator constructs an op from its canonical attributes.
type Creator func(info CreatorInfo) (Op, error)

// RegistryEntry associates an op identifier with its Definition and Creator.
type RegistryEntry struct {
	ID         Identifier
	Definition Definition
	Create     Creator
}

// Registry maps op identifiers to their definitions and constructors.
//
// It's read-only once created: build it once (see DefaultRegistry) and pass it along to where ops are created.
type Registry struct {
	entries map[Identifier]RegistryEntry
}

// NewRegistry creates a read-only registry with the given entries.
// It returns an error if an identifier is registered more than once.
func NewRegistry(entries ...RegistryEntry) (*Registry, error) {
	r := &Registry{entries: make(map[Identifier]RegistryEntry, len(entries))}
	for _, entry := range entries {
		if _, found := r.entries[entry.ID]; found {
			return nil, errors.Errorf("op %s registered more than once", entry.ID)
		}
		if entry.Create == nil {
			return nil, errors.Errorf("op %s registered without a Creator", entry.ID)
		}
		r.entries[entry.ID] = entry
	}
	return r, nil
}

// CollectiveEntries returns the registry entries of the ops defined in this package.
func CollectiveEntries() []RegistryEntry {
	return []RegistryEntry{
		{ID: AllGatherID, Definition: AllGatherDefinition, Create: createAllGather},
		{ID: AllToAllID, Definition: AllToAllDefinition, Create: createAllToAll},
		{ID: AllToAllGradID, Definition: AllToAllDefinition, Create: createAllToAllGrad},
	}
}

// DefaultRegistry returns the registry with the ops defined in this package. It's built once, on first use.
var DefaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(CollectiveEntries()...)
	if err != nil {
		panic(err)
	}
	return r
})

// Definition returns the definition of the identifier.
func (r *Registry) Definition(id Identifier) (Definition, bool) {
	entry, found := r.entries[id]
	return entry.Definition, found
}

// Identifiers returns the registered identifiers, sorted.
func (r *Registry) Identifiers() []Identifier {
	return slices.SortedFunc(maps.Keys(r.entries), func(a, b Identifier) int {
		return cmp.Or(cmp.Compare(a.Domain, b.Domain), cmp.Compare(a.Type, b.Type), cmp.Compare(a.Version, b.Version))
	})
}

// Create validates the attributes against the op's definition and constructs the op.
//
// Errors are reported as InvalidGraphError attributed to the op's name.
func (r *Registry) Create(id Identifier, attrs map[string]any, settings Settings, sess *session.Options) (Op, error) {
	if settings.Name == "" {
		settings.Name = id.Type
	}
	name := settings.Name
	entry, found := r.entries[id]
	if !found {
		return nil, invalidGraphf(name, "op %s is not registered", id)
	}
	if err := entry.Definition.CheckAttributes(name, attrs); err != nil {
		return nil, err
	}
	if settings.Attributes == nil {
		settings.Attributes = attrs
	}
	op, err := entry.Create(CreatorInfo{ID: id, Attributes: attrs, Settings: settings, Session: sess})
	if err != nil {
		return nil, AsInvalidGraph(name, err)
	}
	return op, nil
}

func groupingFromInfo(info CreatorInfo) (replicas.Grouping, error) {
	return replicas.FromAttributes(info.Attributes, info.Session.GlobalReplicationFactor())
}

func createAllGather(info CreatorInfo) (Op, error) {
	grouping, err := groupingFromInfo(info)
	if err != nil {
		return nil, err
	}
	return NewAllGather(grouping, info.Settings), nil
}

func createAllToAll(info CreatorInfo) (Op, error) {
	grouping, err := groupingFromInfo(info)
	if err != nil {
		return nil, err
	}
	return NewAllToAll(grouping, info.Settings), nil
}

func createAllToAllGrad(info CreatorInfo) (Op, error) {
	grouping, err := groupingFromInfo(info)
	if err != nil {
		return nil, err
	}
	return NewAllToAllGrad(grouping, info.Settings), nil
}
