// Package layout owns the install root on disk.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"sharespace/internal/hostenv"
)

const (
	composeFileName    = "docker-compose.yml"
	dataDirName        = "data"
	signalDirName      = "signal-cli"
	identifierFileName = "installation_id"
)

// Paths are the fixed locations under the install root.
type Paths struct {
	Root        string
	Data        string
	SignalData  string
	ComposeFile string
	Identifier  string
}

// New derives Paths for the install directory name under home.
func New(home, installDir string) Paths {
	root := filepath.Join(home, installDir)
	data := filepath.Join(root, dataDirName)
	return Paths{
		Root:        root,
		Data:        data,
		SignalData:  filepath.Join(data, signalDirName),
		ComposeFile: filepath.Join(root, composeFileName),
		Identifier:  filepath.Join(data, identifierFileName),
	}
}

// Dirs lists the directories the installer creates, parents first.
func (p Paths) Dirs() []string {
	return []string{p.Root, p.Data, p.SignalData}
}

// Ensure creates every directory in p that does not exist yet, missing
// parents of the root included, and, when chown is set, hands them and the
// whole install root to owner. It returns the directories this call
// created, outermost first.
func Ensure(p Paths, owner hostenv.Owner, chown bool) ([]string, error) {
	log := slog.With("component", "layout")

	var created, parents []string
	for _, dir := range p.Dirs() {
		st, err := os.Stat(dir)
		switch {
		case err == nil && st.IsDir():
			continue
		case err == nil:
			return created, fmt.Errorf("%s exists and is not a directory", dir)
		case !errors.Is(err, fs.ErrNotExist):
			return created, fmt.Errorf("stat %s: %w", dir, err)
		}

		missing, err := missingDirs(dir)
		if err != nil {
			return created, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return created, fmt.Errorf("create %s: %w", dir, err)
		}
		log.Debug("created directory", "path", dir, "parents", len(missing)-1)
		created = append(created, missing...)
		if dir == p.Root {
			parents = missing[:len(missing)-1]
		}
	}

	if chown {
		for _, dir := range parents {
			if err := os.Lchown(dir, owner.UID, owner.GID); err != nil {
				return created, fmt.Errorf("set owner of %s to %d:%d: %w", dir, owner.UID, owner.GID, err)
			}
		}
		if err := ChownTree(p.Root, owner); err != nil {
			return created, err
		}
	}
	return created, nil
}

// missingDirs returns dir and each of its ancestors that do not exist,
// outermost first.
func missingDirs(dir string) ([]string, error) {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		_, err := os.Lstat(d)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", d, err)
		}
		missing = append([]string{d}, missing...)
		if filepath.Dir(d) == d {
			break
		}
	}
	return missing, nil
}

// ChownTree assigns owner to root and everything beneath it. Symlinks are
// changed themselves, never followed.
func ChownTree(root string, owner hostenv.Owner) error {
	err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, owner.UID, owner.GID)
	})
	if err != nil {
		return fmt.Errorf("set owner of %s to %d:%d: %w", root, owner.UID, owner.GID, err)
	}
	return nil
}

// Remove deletes directories previously returned by Ensure. Outer
// directories come first, so removing one takes its children with it.
func Remove(created []string) error {
	var errs []error
	for _, dir := range created {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}
