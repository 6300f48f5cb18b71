// Package nodetree enumerates every installed package in a node_modules
// layout, including copies nested arbitrarily deep inside per-package
// private dependency trees.
package nodetree

import (
	"encoding/json"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/depwatch/depwatch/types"
)

const (
	defaultContainerName = "node_modules"
	manifestName         = "package.json"

	// defaultMaxDepth bounds container nesting as a safety valve. Real trees
	// stay well below this; hitting it is logged, never silent.
	defaultMaxDepth = 16
)

type option func(w *Walker)

func WithAppFs(fs afero.Fs) option {
	return func(w *Walker) { w.appFs = fs }
}

func WithContainerName(name string) option {
	return func(w *Walker) { w.containerName = name }
}

func WithMaxDepth(depth int) option {
	return func(w *Walker) { w.maxDepth = depth }
}

type Walker struct {
	appFs         afero.Fs
	containerName string
	maxDepth      int
}

func NewWalker(opts ...option) *Walker {
	w := &Walker{
		appFs:         afero.NewOsFs(),
		containerName: defaultContainerName,
		maxDepth:      defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Walk returns every installed package under root, one record per physical
// install path, sorted by install path. Root may be a project directory or a
// container directory itself. Unreadable subtrees and unparsable manifests
// are skipped with a warning; they never abort the walk.
func (w *Walker) Walk(root string) ([]types.InstalledPackage, error) {
	start := root
	if filepath.Base(root) != w.containerName {
		start = filepath.Join(root, w.containerName)
	}
	ok, err := afero.DirExists(w.appFs, start)
	if err != nil {
		return nil, xerrors.Errorf("unable to stat %s: %w", start, err)
	}
	if !ok {
		return nil, nil
	}

	found := map[string]types.InstalledPackage{}
	w.walkContainer(start, 0, found)

	pkgs := make([]types.InstalledPackage, 0, len(found))
	for _, pkg := range found {
		pkgs = append(pkgs, pkg)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].InstallPath < pkgs[j].InstallPath })
	return pkgs, nil
}

func (w *Walker) walkContainer(dir string, depth int, found map[string]types.InstalledPackage) {
	if depth >= w.maxDepth {
		log.Printf("WARN: max nesting depth (%d) reached at %s, deeper packages not scanned", w.maxDepth, dir)
		return
	}

	entries, err := afero.ReadDir(w.appFs, dir)
	if err != nil {
		log.Printf("WARN: skipping unreadable directory %s: %v", dir, err)
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()

		// a namespace directory holds one more level of package directories
		if strings.HasPrefix(name, "@") {
			scopeDir := filepath.Join(dir, name)
			scoped, err := afero.ReadDir(w.appFs, scopeDir)
			if err != nil {
				log.Printf("WARN: skipping unreadable directory %s: %v", scopeDir, err)
				continue
			}
			for _, sub := range scoped {
				if !sub.IsDir() || strings.HasPrefix(sub.Name(), ".") {
					continue
				}
				id := types.PackageIdentifier{Namespace: name, Name: sub.Name()}
				w.visitPackage(filepath.Join(scopeDir, sub.Name()), id, depth, found)
			}
			continue
		}

		w.visitPackage(filepath.Join(dir, name), types.PackageIdentifier{Name: name}, depth, found)
	}
}

func (w *Walker) visitPackage(dir string, id types.PackageIdentifier, depth int, found map[string]types.InstalledPackage) {
	version, err := w.readManifest(dir)
	switch {
	case err != nil:
		log.Printf("WARN: skipping %s: %v", dir, err)
	case version == "":
		// manifest without a version is useless to an exact-match audit
	default:
		if _, ok := found[dir]; !ok {
			found[dir] = types.InstalledPackage{
				Identifier:  id,
				Version:     version,
				InstallPath: dir,
			}
		}
	}

	// privately bundled transitive dependencies live below the package itself
	nested := filepath.Join(dir, w.containerName)
	if ok, _ := afero.DirExists(w.appFs, nested); ok {
		w.walkContainer(nested, depth+1, found)
	}
}

func (w *Walker) readManifest(dir string) (string, error) {
	path := filepath.Join(dir, manifestName)
	ok, err := afero.Exists(w.appFs, path)
	if err != nil || !ok {
		// no manifest is common for placeholder directories, not worth a warning
		return "", nil
	}

	b, err := afero.ReadFile(w.appFs, path)
	if err != nil {
		return "", xerrors.Errorf("manifest read error: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return "", xerrors.Errorf("manifest parse error: %w", err)
	}
	return strings.TrimSpace(m.Version), nil
}
