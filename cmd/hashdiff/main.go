// Command hashdiff fingerprints HDF5, netCDF-4 and GeoTIFF files and checks
// them against stored hash documents.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 1 when a comparison found differences and 2 for any other
// failure.
func exitCode(err error) int {
	if errors.Is(err, errMismatch) {
		return 1
	}
	return 2
}
