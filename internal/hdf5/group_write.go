package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/go-hashdiff/internal/message"
	"github.com/robert-malhotra/go-hashdiff/internal/object"
)

// CreateGroup creates a new subgroup with the given name.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if !g.file.writable {
		return nil, ErrReadOnly
	}
	if name == "" {
		return nil, fmt.Errorf("group name cannot be empty")
	}

	groupMessages := object.NewGroupHeader(nil)
	headerSize := object.HeaderSizeWithMinChunk(g.file.writer, groupMessages, object.MinGroupChunkSize)
	groupAddr := g.file.allocate(int64(headerSize))

	w := g.file.writer.At(int64(groupAddr))
	if _, err := object.WriteHeaderWithMinChunk(w, groupMessages, object.MinGroupChunkSize); err != nil {
		return nil, fmt.Errorf("writing group header: %w", err)
	}

	if err := g.addLink(message.NewHardLink(name, groupAddr)); err != nil {
		return nil, fmt.Errorf("adding link to parent: %w", err)
	}

	return &Group{
		file:         g.file,
		parent:       g,
		path:         path.Join(g.path, name),
		addr:         groupAddr,
		pendingLinks: []*message.Link{},
		pendingAttrs: []*message.Attribute{},
	}, nil
}

// SetAttr adds an attribute to the group, or replaces an existing one with
// the same name. Values follow the rules of WithAttribute.
func (g *Group) SetAttr(name string, value any) error {
	if !g.file.writable {
		return ErrReadOnly
	}

	attrMsg, err := createAttributeMessage(name, value)
	if err != nil {
		return fmt.Errorf("creating attribute %q: %w", name, err)
	}

	if err := g.loadExisting(); err != nil {
		return err
	}

	replaced := false
	for i, a := range g.pendingAttrs {
		if a.Name == name {
			g.pendingAttrs[i] = attrMsg
			replaced = true
		}
	}
	if !replaced {
		g.pendingAttrs = append(g.pendingAttrs, attrMsg)
	}

	return g.rewriteHeader()
}

// addLink adds a link message to this group and rewrites its header.
func (g *Group) addLink(link *message.Link) error {
	if !g.file.writable {
		return ErrReadOnly
	}

	if err := g.loadExisting(); err != nil {
		return err
	}

	g.pendingLinks = append(g.pendingLinks, link)
	return g.rewriteHeader()
}

// loadExisting loads the link and attribute messages already stored in the
// group's object header, once.
func (g *Group) loadExisting() error {
	if g.pendingLinks != nil {
		return nil
	}
	g.pendingLinks = []*message.Link{}
	g.pendingAttrs = []*message.Attribute{}

	if g.header == nil {
		header, err := object.Read(g.file.reader, g.addr)
		if err != nil {
			return fmt.Errorf("reading group header: %w", err)
		}
		g.header = header
	}

	g.pendingLinks = append(g.pendingLinks, g.header.Links()...)
	g.pendingAttrs = append(g.pendingAttrs, g.header.Attributes()...)
	return nil
}

// rewriteHeader writes a fresh object header with all pending links and
// attributes, then repoints the parent (or the superblock for the root).
func (g *Group) rewriteHeader() error {
	messages := object.NewGroupHeader(g.pendingLinks)
	for _, attr := range g.pendingAttrs {
		messages = append(messages, attr)
	}

	// Headers can't be resized in place
	headerSize := object.HeaderSizeWithMinChunk(g.file.writer, messages, object.MinGroupChunkSize)
	newAddr := g.file.allocate(int64(headerSize))

	w := g.file.writer.At(int64(newAddr))
	if _, err := object.WriteHeaderWithMinChunk(w, messages, object.MinGroupChunkSize); err != nil {
		return err
	}
	g.addr = newAddr

	if g.parent == nil {
		g.file.superblock.RootGroupAddress = newAddr
		return nil
	}
	return g.parent.updateLink(path.Base(g.path), newAddr)
}

// updateLink repoints the named link at newAddr and rewrites the header.
func (g *Group) updateLink(name string, newAddr uint64) error {
	if err := g.loadExisting(); err != nil {
		return err
	}
	for _, link := range g.pendingLinks {
		if link.Name == name {
			link.ObjectAddress = newAddr
		}
	}
	return g.rewriteHeader()
}
