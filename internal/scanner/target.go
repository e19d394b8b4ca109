package scanner

import (
	"bufio"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// Target represents a file to be scanned.
type Target struct {
	// Path is the on-disk path.
	Path string
	// RelPath is the display path used in reports.
	RelPath string
	Content []byte
	// Explicit is set when the file was named directly rather than found by
	// walking a directory. Explicit files bypass include patterns.
	Explicit bool
}

// LoadContent reads the file content into memory. Targets that already
// carry content are left untouched.
func (t *Target) LoadContent() error {
	if t.Content != nil {
		return nil
	}
	data, err := os.ReadFile(t.Path)
	if err != nil {
		return err
	}
	t.Content = data
	return nil
}

// TargetDiscovery walks a directory and returns the files admitted by the
// include and exclude patterns.
type TargetDiscovery struct {
	Include []string
	Exclude []string
}

// Discover walks root and returns its targets in lexical order, honouring an
// .argusignore file at root. Display paths are root joined with the path
// relative to it. Entries that cannot be read are returned as input errors;
// symlinks to regular files are followed, symlinked directories are not.
func (td *TargetDiscovery) Discover(root string) ([]*Target, []types.ScanError, error) {
	exclude := append(append([]string(nil), td.Exclude...), loadIgnoreFile(root)...)

	var (
		targets []*Target
		errs    []types.ScanError
	)
	display := func(rel string) string { return filepath.ToSlash(filepath.Join(root, rel)) }
	walkRoot := root
	if fi, err := os.Lstat(root); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(root); err == nil {
			walkRoot = resolved
		}
	}
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(walkRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if err != nil {
			if rel == "." {
				return err
			}
			errs = append(errs, types.ScanError{Category: types.ErrInput, File: display(rel), Message: err.Error()})
			return nil
		}
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if d.Name() == ".git" || matchAny(exclude, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		mode := d.Type()
		if mode&fs.ModeSymlink != 0 {
			info, statErr := os.Stat(p)
			switch {
			case statErr != nil:
				if matchAny(exclude, rel) || !matchAny(td.Include, rel) {
					return nil
				}
				errs = append(errs, types.ScanError{Category: types.ErrInput, File: display(rel), Message: statErr.Error()})
				return nil
			case info.IsDir():
				if !matchAny(exclude, rel+"/") {
					errs = append(errs, types.ScanError{Category: types.ErrSkipped, File: display(rel), Message: "symlinked directory not followed"})
				}
				return nil
			}
			mode = info.Mode().Type()
		}
		if !mode.IsRegular() || isBinaryExt(p) {
			return nil
		}
		if matchAny(exclude, rel) || !matchAny(td.Include, rel) {
			return nil
		}
		targets = append(targets, &Target{
			Path:    p,
			RelPath: display(rel),
		})
		return nil
	})
	return targets, errs, err
}

// Admit reports whether an explicitly named file passes the exclude patterns.
func (td *TargetDiscovery) Admit(file string) bool {
	return !matchAny(td.Exclude, filepath.ToSlash(filepath.Clean(file)))
}

func loadIgnoreFile(root string) []string {
	f, err := os.Open(filepath.Join(root, ".argusignore"))
	if err != nil {
		return nil
	}
	defer f.Close()
	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns
}

func matchAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if MatchGlob(p, relPath) {
			return true
		}
	}
	return false
}

// MatchGlob matches a slash-separated path against a glob in which "**"
// spans any number of directories. A pattern without a slash is also tried
// against the base name, so "*.teal" matches "contracts/app.teal".
func MatchGlob(pattern, relPath string) bool {
	pattern = filepath.ToSlash(pattern)
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "./")
	if !strings.Contains(pattern, "/") {
		if ok, _ := path.Match(pattern, path.Base(strings.TrimSuffix(relPath, "/"))); ok {
			return true
		}
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(relPath, "/"))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			pat = pat[1:]
			if len(pat) == 0 {
				return true
			}
			for i := range len(segs) + 1 {
				if matchSegments(pat, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], segs[0]); !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}

var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".ico": true, ".woff": true, ".woff2": true, ".ttf": true,
	".zip": true, ".tar": true, ".gz": true, ".xz": true,
	".pdf": true, ".bin": true, ".o": true, ".a": true,
	".wasm": true, ".tok": true, ".pyc": true,
}

func isBinaryExt(p string) bool {
	return binaryExts[strings.ToLower(filepath.Ext(p))]
}
