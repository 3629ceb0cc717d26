package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	pkgerrors "github.com/matzehuels/npmfence/pkg/errors"
)

// DirFinder reads resources from a file system such as os.DirFS or an
// embed.FS.
type DirFinder struct {
	fsys fs.FS
}

// NewDirFinder creates a finder over fsys.
func NewDirFinder(fsys fs.FS) *DirFinder {
	return &DirFinder{fsys: fsys}
}

// Find implements Finder.
func (d *DirFinder) Find(ctx context.Context, name string) ([]byte, error) {
	if err := pkgerrors.ValidateResourceName(name); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(d.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
