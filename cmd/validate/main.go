// Command validate checks catalog files against the catalog schema and the
// field type registry.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gnemet/viewsets"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: viewsets-validate <catalog_path1> [catalog_path2] ...")
		os.Exit(1)
	}

	allValid := true
	for _, path := range os.Args[1:] {
		name := filepath.Base(path)
		cat, err := viewsets.LoadCatalog(path)
		if err == nil {
			fmt.Printf("✅ %s is valid (%d objects).\n", name, len(cat.Objects))
			continue
		}
		allValid = false
		if !errors.Is(err, viewsets.ErrInvalidCatalog) {
			fmt.Printf("❌ Error reading %s: %v\n", name, err)
			continue
		}
		fmt.Printf("❌ %s is invalid!\n", name)
		msg := strings.TrimPrefix(err.Error(), path+": ")
		msg = strings.TrimPrefix(msg, viewsets.ErrInvalidCatalog.Error()+": ")
		for _, desc := range strings.Split(msg, "; ") {
			fmt.Printf("   - %s\n", desc)
		}
	}

	if !allValid {
		os.Exit(1)
	}
}
