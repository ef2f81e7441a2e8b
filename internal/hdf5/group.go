package hdf5

import (
	"fmt"
	"path"
	"sort"

	"github.com/robert-malhotra/go-hashdiff/internal/btree"
	"github.com/robert-malhotra/go-hashdiff/internal/heap"
	"github.com/robert-malhotra/go-hashdiff/internal/message"
	"github.com/robert-malhotra/go-hashdiff/internal/object"
)

// Group represents an HDF5 group.
type Group struct {
	file   *File
	parent *Group
	path   string
	header *object.Header
	addr   uint64

	// Write support fields
	pendingLinks []*message.Link
	pendingAttrs []*message.Attribute
}

// linkResolution holds the result of resolving a link.
type linkResolution struct {
	address   uint64 // Object address
	isDataset bool   // True if target is a dataset
	file      *File  // Target file (nil = same file, non-nil = external file)
}

// Name returns the group name (last component of path).
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return path.Base(g.path)
}

// Path returns the full path to this group.
func (g *Group) Path() string {
	return g.path
}

// Address returns the file address of the group's object header.
func (g *Group) Address() uint64 {
	return g.addr
}

// OpenGroup opens a subgroup by relative path.
func (g *Group) OpenGroup(relativePath string) (*Group, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}

	group, ok := obj.(*Group)
	if !ok {
		return nil, ErrNotGroup
	}
	return group, nil
}

// OpenDataset opens a dataset by relative path.
func (g *Group) OpenDataset(relativePath string) (*Dataset, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}

	dataset, ok := obj.(*Dataset)
	if !ok {
		return nil, ErrNotDataset
	}
	return dataset, nil
}

// open opens an object by relative path. The result is a *Group or *Dataset.
func (g *Group) open(relativePath string) (any, error) {
	parts := splitPath(relativePath)
	if len(parts) == 0 {
		return g, nil
	}

	current := g
	visited := make(map[string]bool)

	for i, name := range parts {
		res, err := current.findChildFull(name, visited)
		if err != nil {
			return nil, fmt.Errorf("finding %q: %w", name, err)
		}

		targetFile := current.file
		if res.file != nil {
			targetFile = res.file
		}

		fullPath := path.Join(current.path, name)

		if i == len(parts)-1 {
			if res.isDataset {
				return targetFile.openDatasetAt(res.address, fullPath)
			}
			grp, err := targetFile.openGroupAt(res.address, fullPath)
			if err != nil {
				return nil, err
			}
			grp.parent = current
			return grp, nil
		}

		if res.isDataset {
			return nil, fmt.Errorf("%q is not a group", fullPath)
		}

		nextGroup, err := targetFile.openGroupAt(res.address, fullPath)
		if err != nil {
			return nil, err
		}
		nextGroup.parent = current
		current = nextGroup
	}

	return current, nil
}

// findChildFull finds a child and returns full resolution info including external file.
func (g *Group) findChildFull(name string, visited map[string]bool) (*linkResolution, error) {
	if err := g.file.checkCompactStorage(g.header); err != nil {
		return nil, err
	}

	// Link messages (v2 groups)
	for _, link := range g.header.Links() {
		if link.Name == name {
			return g.resolveLink(link, visited)
		}
	}

	if symTable := g.symbolTable(); symTable != nil {
		return g.findChildV1Full(name, symTable, visited)
	}

	return nil, ErrNotFound
}

// symbolTable returns the v1 symbol table of the group, falling back to the
// superblock scratch pad for the root group.
func (g *Group) symbolTable() *message.SymbolTable {
	if st := g.header.SymbolTable(); st != nil {
		return st
	}
	if g.path == "/" && g.file.superblock.RootGroupBTreeAddress != 0 {
		return &message.SymbolTable{
			BTreeAddress:     g.file.superblock.RootGroupBTreeAddress,
			LocalHeapAddress: g.file.superblock.RootGroupLocalHeapAddress,
		}
	}
	return nil
}

// resolveLink resolves a link to get the target object's address.
func (g *Group) resolveLink(link *message.Link, visited map[string]bool) (*linkResolution, error) {
	switch {
	case link.IsHard():
		isDataset, err := g.isDataset(link.ObjectAddress)
		if err != nil {
			return nil, err
		}
		return &linkResolution{address: link.ObjectAddress, isDataset: isDataset}, nil

	case link.IsSoft():
		return g.resolveSoft(link.SoftLinkValue, visited)

	case link.IsExternal():
		addr, isDs, extFile, err := g.file.resolveExternalLink(
			link.ExternalFile, link.ExternalPath, visited)
		if err != nil {
			return nil, err
		}
		return &linkResolution{address: addr, isDataset: isDs, file: extFile}, nil

	default:
		return nil, fmt.Errorf("%w: link type %d", ErrUnsupported, link.LinkType)
	}
}

func (g *Group) resolveSoft(targetPath string, visited map[string]bool) (*linkResolution, error) {
	if len(visited) >= MaxLinkDepth {
		return nil, ErrLinkDepth
	}
	if visited[targetPath] {
		return nil, fmt.Errorf("circular soft link detected: %s", targetPath)
	}
	visited[targetPath] = true
	return g.file.findByAbsolutePathFull(targetPath, visited)
}

// findChildV1Full finds a child in a v1 group with full resolution info.
func (g *Group) findChildV1Full(name string, symTable *message.SymbolTable, visited map[string]bool) (*linkResolution, error) {
	entries, err := g.entriesV1(symTable)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Name != name {
			continue
		}
		if entry.IsSoft() {
			return g.resolveSoft(entry.SoftLinkValue, visited)
		}
		isDataset, err := g.isDataset(entry.ObjectAddress)
		if err != nil {
			return nil, err
		}
		return &linkResolution{address: entry.ObjectAddress, isDataset: isDataset}, nil
	}

	return nil, ErrNotFound
}

// entriesV1 reads all symbol table entries of a v1 group.
func (g *Group) entriesV1(symTable *message.SymbolTable) ([]btree.GroupEntry, error) {
	localHeap, err := heap.ReadLocal(g.file.reader, symTable.LocalHeapAddress)
	if err != nil {
		return nil, fmt.Errorf("reading local heap: %w", err)
	}

	entries, err := btree.ReadGroupEntries(g.file.reader, symTable.BTreeAddress, localHeap)
	if err != nil {
		return nil, fmt.Errorf("reading B-tree: %w", err)
	}
	return entries, nil
}

// isDataset checks if an object at the given address is a dataset.
func (g *Group) isDataset(address uint64) (bool, error) {
	header, err := object.Read(g.file.reader, address)
	if err != nil {
		return false, err
	}

	return header.IsDataset(), nil
}

// Members returns the sorted names of all members (groups and datasets) in
// this group.
func (g *Group) Members() ([]string, error) {
	if err := g.file.checkCompactStorage(g.header); err != nil {
		return nil, err
	}

	var names []string
	for _, link := range g.header.Links() {
		names = append(names, link.Name)
	}

	if len(names) == 0 {
		if symTable := g.symbolTable(); symTable != nil {
			entries, err := g.entriesV1(symTable)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				names = append(names, entry.Name)
			}
		}
	}

	sort.Strings(names)
	return names, nil
}

// Attributes returns the group's attributes sorted by name.
func (g *Group) Attributes() ([]*Attribute, error) {
	return g.file.attributes(g.header)
}

// Attr returns an attribute by name, or nil if not found.
func (g *Group) Attr(name string) *Attribute {
	return g.file.attr(g.header, name)
}
