// Package netcdf reads HDF5 files, and netCDF-4 files stored in them, into
// structure nodes.
//
// Dimension names follow the netCDF-4 dimension-scale conventions when a
// file carries them; otherwise each axis gets a phony_dim_<axis> name.
package netcdf

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/robert-malhotra/go-hashdiff/internal/dtype"
	"github.com/robert-malhotra/go-hashdiff/internal/hdf5"
	"github.com/robert-malhotra/go-hashdiff/internal/structure"
)

const (
	attrClass       = "CLASS"
	attrName        = "NAME"
	attrDimList     = "DIMENSION_LIST"
	attrRefList     = "REFERENCE_LIST"
	attrDimID       = "_Netcdf4Dimid"
	attrCoordinates = "_Netcdf4Coordinates"
	attrFillValue   = "_FillValue"
	attrMissing     = "missing_value"

	classDimensionScale = "DIMENSION_SCALE"

	// dimensionOnlyPrefix starts the NAME of datasets netCDF-4 writes only
	// to carry a dimension.
	dimensionOnlyPrefix = "This is a netCDF dimension but not a netCDF variable"
)

// Reader produces nodes from an HDF5 file. With Conventions set it reads
// the file as netCDF-4 and hides the datasets netCDF-4 uses only to
// declare dimensions.
type Reader struct {
	Conventions bool
}

// object is one walked group or dataset with its decoded attributes.
type object struct {
	path  string
	group *hdf5.Group
	ds    *hdf5.Dataset
	attrs map[string]any

	// scale is the dimension name when the dataset is a dimension scale.
	scale         string
	dimensionOnly bool
}

// index resolves dimension references found while walking.
type index struct {
	paths   map[uint64]string // object address -> path
	byAddr  map[uint64]*object
	byDimID map[string]map[int64]string // group path -> dimid -> name
	scales  map[string][]string         // group path -> scale names
}

// Read walks the file at filename and calls visit for each node: groups first,
// then their members in sorted order.
func (r Reader) Read(fsys billy.Filesystem, filename string, visit structure.Visitor) error {
	f, err := hdf5.Open(fsys, filename)
	if err != nil {
		return fmt.Errorf("%w: %w", structure.ErrUnreadable, err)
	}
	defer f.Close()

	objects, idx, err := collect(f)
	if err != nil {
		return err
	}

	for _, obj := range objects {
		if r.Conventions && obj.dimensionOnly {
			continue
		}
		node, err := r.node(obj, idx)
		if err != nil {
			return err
		}
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}

// collect walks the whole file once so that dimension references can be
// resolved regardless of where their targets live.
func collect(f *hdf5.File) ([]*object, *index, error) {
	idx := &index{
		paths:   make(map[uint64]string),
		byAddr:  make(map[uint64]*object),
		byDimID: make(map[string]map[int64]string),
		scales:  make(map[string][]string),
	}
	var objects []*object

	err := hdf5.Walk(f.Root(), func(p string, o any, err error) error {
		if err != nil {
			switch {
			case errors.Is(err, hdf5.ErrNamedDatatype):
				return nil
			case errors.Is(err, hdf5.ErrNotFound):
				return fmt.Errorf("%w: %s: %w", structure.ErrMissingStructure, p, err)
			default:
				return fmt.Errorf("%w: %s: %w", structure.ErrUnreadable, p, err)
			}
		}

		obj := &object{path: p}
		var attrs []*hdf5.Attribute
		switch v := o.(type) {
		case *hdf5.Group:
			obj.group = v
			attrs, err = v.Attributes()
		case *hdf5.Dataset:
			obj.ds = v
			attrs, err = v.Attributes()
		default:
			return fmt.Errorf("%w: %s is neither a group nor a dataset", structure.ErrMissingStructure, p)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", structure.ErrUnreadable, p, err)
		}
		if obj.attrs, err = decodeAttributes(p, attrs); err != nil {
			return err
		}

		if obj.ds != nil {
			idx.paths[obj.ds.Address()] = p
			idx.add(obj)
		} else {
			idx.paths[obj.group.Address()] = p
		}
		objects = append(objects, obj)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return objects, idx, nil
}

// decodeAttributes reads every attribute except the reference lists, which
// hold file addresses and are consumed as dimension information instead.
func decodeAttributes(p string, attrs []*hdf5.Attribute) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for _, a := range attrs {
		if a.Name() == attrDimList || a.Name() == attrRefList {
			continue
		}
		v, err := a.Value()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", structure.ErrUnreadable, p, err)
		}
		out[a.Name()] = v
	}
	return out, nil
}

func (idx *index) add(obj *object) {
	idx.byAddr[obj.ds.Address()] = obj

	if class, _ := obj.attrs[attrClass].(string); class != classDimensionScale {
		return
	}
	name := path.Base(obj.path)
	if n, _ := obj.attrs[attrName].(string); n != "" {
		if strings.HasPrefix(n, dimensionOnlyPrefix) {
			obj.dimensionOnly = true
		} else {
			name = n
		}
	}
	obj.scale = name

	parent := path.Dir(obj.path)
	idx.scales[parent] = append(idx.scales[parent], name)
	if id, ok := asInt(obj.attrs[attrDimID]); ok {
		if idx.byDimID[parent] == nil {
			idx.byDimID[parent] = make(map[int64]string)
		}
		idx.byDimID[parent][id] = name
	}
}

// dimID finds the dimension with the given id in group or its ancestors.
func (idx *index) dimID(group string, id int64) (string, bool) {
	for {
		if name, ok := idx.byDimID[group][id]; ok {
			return name, true
		}
		if group == "/" {
			return "", false
		}
		group = path.Dir(group)
	}
}

func (r Reader) node(obj *object, idx *index) (*structure.Node, error) {
	attrs := make(map[string]any, len(obj.attrs))
	for name, v := range obj.attrs {
		attrs[name] = idx.resolve(v)
	}

	if obj.group != nil {
		dims := append([]string{}, idx.scales[obj.path]...)
		sort.Strings(dims)
		return &structure.Node{
			Path:       obj.path,
			Kind:       structure.KindGroup,
			Attributes: attrs,
			Dimensions: dims,
		}, nil
	}

	values, err := obj.ds.Values()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", structure.ErrUnreadable, obj.path, err)
	}
	dims, err := dimensions(obj, idx)
	if err != nil {
		return nil, err
	}
	return &structure.Node{
		Path:       obj.path,
		Kind:       structure.KindVariable,
		Attributes: attrs,
		Dimensions: dims,
		Array: &structure.Array{
			Shape:  obj.ds.Shape(),
			Values: idx.resolve(values),
			Fill:   fillValue(attrs),
		},
	}, nil
}

// resolve replaces object references, at any depth, with the paths of
// their targets.
func (idx *index) resolve(v any) any {
	switch x := v.(type) {
	case dtype.Reference:
		return structure.Reference(idx.paths[uint64(x)])
	case []dtype.Reference:
		out := make([]structure.Reference, len(x))
		for i, r := range x {
			out[i] = structure.Reference(idx.paths[uint64(r)])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = idx.resolve(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			out[i] = idx.resolve(e).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = idx.resolve(e)
		}
		return out
	}
	return v
}

// dimensions names each axis of a dataset. Each axis takes the first name
// found from DIMENSION_LIST, then _Netcdf4Coordinates, then the dataset's
// own scale name, then falls back to a phony name.
func dimensions(obj *object, idx *index) ([]string, error) {
	rank := obj.ds.Rank()
	dims := make([]string, rank)

	if a := obj.ds.Attr(attrDimList); a != nil {
		refs, err := a.ObjectReferences()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", structure.ErrUnreadable, obj.path, err)
		}
		for i := 0; i < rank && i < len(refs); i++ {
			if len(refs[i]) == 0 {
				continue
			}
			if target, ok := idx.byAddr[refs[i][0]]; ok && target.scale != "" {
				dims[i] = target.scale
			}
		}
	}

	if ids, ok := asInts(obj.attrs[attrCoordinates]); ok {
		group := path.Dir(obj.path)
		for i := 0; i < rank && i < len(ids); i++ {
			if dims[i] != "" {
				continue
			}
			if name, ok := idx.dimID(group, ids[i]); ok {
				dims[i] = name
			}
		}
	}

	if rank == 1 && dims[0] == "" && obj.scale != "" {
		dims[0] = obj.scale
	}

	for i := range dims {
		if dims[i] == "" {
			dims[i] = fmt.Sprintf("phony_dim_%d", i)
		}
	}
	return dims, nil
}

func fillValue(attrs map[string]any) any {
	if v, ok := attrs[attrFillValue]; ok {
		return v
	}
	return attrs[attrMissing]
}
