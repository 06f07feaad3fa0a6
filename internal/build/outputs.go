package build

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Output is one file the engine produced.
type Output struct {
	// Path is slash-separated and relative to the output directory.
	Path string
	// Hash is the sha256 of the bytes last written.
	Hash  string
	Owner string
}

// commitResult lists what a commit changed on disk.
type commitResult struct {
	Written []string
	Skipped []string
	Deleted []string
}

func (c *commitResult) merge(o commitResult) {
	c.Written = append(c.Written, o.Written...)
	c.Skipped = append(c.Skipped, o.Skipped...)
	c.Deleted = append(c.Deleted, o.Deleted...)
}

// outputs is the registry of written files. A write whose hash matches the
// last write of the same path is skipped.
type outputs struct {
	dir     string
	mu      sync.Mutex
	byPath  map[string]*Output
	byOwner map[string]map[string]bool
}

func newOutputs(dir string) *outputs {
	return &outputs{
		dir:     dir,
		byPath:  make(map[string]*Output),
		byOwner: make(map[string]map[string]bool),
	}
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (o *outputs) abs(rel string) string {
	return filepath.Join(o.dir, filepath.FromSlash(rel))
}

// commit makes files the complete set of outputs of owner: each file is
// written unless unchanged, and paths the owner produced before but not now
// are deleted.
func (o *outputs) commit(owner string, files map[string][]byte) (commitResult, error) {
	var res commitResult
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		written, err := o.write(owner, p, files[p])
		if err != nil {
			return res, err
		}
		if written {
			res.Written = append(res.Written, p)
		} else {
			res.Skipped = append(res.Skipped, p)
		}
	}

	for _, p := range o.owned(owner) {
		if _, keep := files[p]; keep {
			continue
		}
		deleted, err := o.remove(p)
		if err != nil {
			return res, err
		}
		if deleted {
			res.Deleted = append(res.Deleted, p)
		}
	}
	return res, nil
}

// release deletes every output of owner.
func (o *outputs) release(owner string) (commitResult, error) {
	return o.commit(owner, nil)
}

func (o *outputs) write(owner, rel string, data []byte) (bool, error) {
	hash := hashBytes(data)
	target := o.abs(rel)

	o.mu.Lock()
	prev, known := o.byPath[rel]
	o.mu.Unlock()

	unchanged := false
	if known && prev.Hash == hash {
		_, err := os.Stat(target)
		unchanged = err == nil
	} else if !known {
		if existing, err := os.ReadFile(target); err == nil && hashBytes(existing) == hash {
			unchanged = true
		}
	}

	if !unchanged {
		if err := writeAtomic(target, data); err != nil {
			return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write output").
				WithContext("path", rel).
				Build()
		}
	}

	o.mu.Lock()
	if known && prev.Owner != owner {
		o.dropOwnerLocked(prev.Owner, rel)
	}
	o.byPath[rel] = &Output{Path: rel, Hash: hash, Owner: owner}
	set := o.byOwner[owner]
	if set == nil {
		set = make(map[string]bool)
		o.byOwner[owner] = set
	}
	set[rel] = true
	o.mu.Unlock()
	return !unchanged, nil
}

func writeAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".sitegen-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	// #nosec G302 -- site output is public
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, target)
}

func (o *outputs) remove(rel string) (bool, error) {
	o.mu.Lock()
	if prev, ok := o.byPath[rel]; ok {
		o.dropOwnerLocked(prev.Owner, rel)
		delete(o.byPath, rel)
	}
	o.mu.Unlock()

	err := os.Remove(o.abs(rel))
	if err != nil && !os.IsNotExist(err) {
		return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to delete output").
			WithContext("path", rel).
			Build()
	}
	o.removeEmptyParents(rel)
	return err == nil, nil
}

func (o *outputs) dropOwnerLocked(owner, rel string) {
	if set := o.byOwner[owner]; set != nil {
		delete(set, rel)
		if len(set) == 0 {
			delete(o.byOwner, owner)
		}
	}
}

func (o *outputs) removeEmptyParents(rel string) {
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if err := os.Remove(o.abs(dir)); err != nil {
			return
		}
	}
}

func (o *outputs) owned(owner string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.byOwner[owner]))
	for p := range o.byOwner[owner] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// owners returns every owner id starting with prefix.
func (o *outputs) owners(prefix string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for owner := range o.byOwner {
		if strings.HasPrefix(owner, prefix) {
			out = append(out, owner)
		}
	}
	sort.Strings(out)
	return out
}

func (o *outputs) known() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]bool, len(o.byPath))
	for p := range o.byPath {
		out[p] = true
	}
	return out
}

func (o *outputs) list() []Output {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Output, 0, len(o.byPath))
	for _, v := range o.byPath {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// pruneOrphans deletes files under the output directory that no owner
// produced.
func (o *outputs) pruneOrphans() ([]string, error) {
	known := o.known()
	var orphans []string
	err := filepath.WalkDir(o.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(o.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !known[rel] {
			orphans = append(orphans, rel)
		}
		return nil
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to scan output directory").
			WithContext("path", o.dir).
			Build()
	}
	sort.Strings(orphans)
	var deleted []string
	for _, rel := range orphans {
		ok, err := o.remove(rel)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted = append(deleted, rel)
		}
	}
	return deleted, nil
}
