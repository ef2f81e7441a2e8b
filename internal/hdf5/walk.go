package hdf5

import (
	"errors"
	"path"
)

// WalkFunc is called for each object during traversal.
// path is the full path to the object.
// obj is either *Group or *Dataset.
// err is any error encountered opening the object.
// Return nil to continue walking, SkipGroup to skip the children of a
// group, or any other error to stop.
type WalkFunc func(path string, obj any, err error) error

// SkipGroup can be returned from a WalkFunc to skip the members of the group
// it was called for. Returned for a dataset it is ignored.
var SkipGroup = errors.New("skip this group")

// Walk traverses all objects (groups and datasets) in the hierarchy starting
// from g, depth first. Members are visited in sorted name order so a file
// always walks the same way.
//
// Example:
//
//	Walk(root, func(path string, obj any, err error) error {
//	    if err != nil {
//	        return err
//	    }
//	    switch o := obj.(type) {
//	    case *Group:
//	        fmt.Println("Group:", path)
//	    case *Dataset:
//	        fmt.Println("Dataset:", path, "shape:", o.Shape())
//	    }
//	    return nil
//	})
func Walk(g *Group, fn WalkFunc) error {
	err := walkGroup(g, fn)
	if errors.Is(err, SkipGroup) {
		return nil
	}
	return err
}

// walkGroup recursively walks a group and its children.
func walkGroup(g *Group, fn WalkFunc) error {
	if err := fn(g.Path(), g, nil); err != nil {
		return err
	}

	members, err := g.Members()
	if err != nil {
		return fn(g.Path(), g, err)
	}

	for _, name := range members {
		childPath := path.Join(g.Path(), name)

		obj, err := g.open(name)
		if err != nil {
			if err := fn(childPath, nil, err); err != nil && !errors.Is(err, SkipGroup) {
				return err
			}
			continue
		}

		switch o := obj.(type) {
		case *Group:
			if err := walkGroup(o, fn); err != nil && !errors.Is(err, SkipGroup) {
				return err
			}
		case *Dataset:
			if err := fn(childPath, o, nil); err != nil && !errors.Is(err, SkipGroup) {
				return err
			}
		}
	}

	return nil
}
