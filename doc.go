// Package hashdiff fingerprints Earth-science data files and compares them
// against stored fingerprints.
//
// A file is read as a set of nodes: the groups and variables of an HDF5 or
// netCDF-4 file, or the root and bands of a GeoTIFF. Each node is reduced to
// canonical bytes (its attributes minus volatile ones such as history, its
// dimension names and its array payload) and hashed with SHA-256. The result
// is a hash document, a JSON object mapping node paths to hex digests:
//
//	{
//	  "/": "5b1f...",
//	  "/temperature": "0c9e...",
//	  "/time": "77aa..."
//	}
//
// Two files produce the same document exactly when their content matches
// after filtering, regardless of layout, chunking, compression or the order
// in which the writer created objects.
//
// # Generating and comparing
//
//	doc, err := hashdiff.GetHashes("granule.nc")
//	err = hashdiff.CreateHashFile("granule.nc", "granule.json")
//	ok, err := hashdiff.MatchesReferenceHashFile("granule.nc", "granule.json")
//
// The format is taken from the extension (.h5, .hdf5, .he5, .nc, .nc4,
// .tif, .tiff) or sniffed from the content. Use [WithFormat] to force it.
// [CompareFile] reports which paths differ rather than a bare boolean.
//
// # Filtering
//
// Attributes named in the filter table are left out of every node. The
// built-in table drops history and the format's own bookkeeping; see
// [DefaultFilterTable]. [WithSkippedAttributes] adds names for one call and
// [WithSkippedPaths] removes whole groups or variables.
//
// # Errors
//
// Failures are reported as [*FileFormatError], [*StructuralError],
// [*UnsupportedFormatError] or [*ReferenceDocumentError], each matching its
// sentinel with errors.Is. A mismatch is not an error.
package hashdiff
