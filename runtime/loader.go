package runtime

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// LoaderFunc resolves a template name to its source. A missing template is
// signalled with an error matching ErrNotFound; any other error is treated
// as a loader failure and aborts resolution.
type LoaderFunc func(name string) (string, error)

// PathJoinFunc resolves a referenced template name relative to the template
// that references it. Without one, names are used verbatim.
type PathJoinFunc func(name, parent string) string

// MapLoader serves templates from an in-memory map.
func MapLoader(templates map[string]string) LoaderFunc {
	return func(name string) (string, error) {
		source, ok := templates[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return source, nil
	}
}

// FilesystemLoader serves templates from an afero filesystem rooted at dir.
// A name with a ".." segment reports ErrNotFound, exactly like a template
// that does not exist, so traversal probes are indistinguishable from misses.
func FilesystemLoader(fsys afero.Fs, root string) LoaderFunc {
	cleanRoot := path.Clean(root)
	return func(name string) (string, error) {
		for _, seg := range strings.Split(name, "/") {
			if seg == ".." {
				return "", fmt.Errorf("%w: %s", ErrNotFound, name)
			}
		}
		joined := path.Join(cleanRoot, path.Clean("/"+name))
		data, err := afero.ReadFile(fsys, joined)
		if err != nil {
			if isNotExist(err) {
				return "", fmt.Errorf("%w: %s", ErrNotFound, name)
			}
			return "", err
		}
		return string(data), nil
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}
