package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ObjectExt is the file extension of encoded programs.
const ObjectExt = ".jbc"

// SourceFS resolves relPath and returns a file system rooted at the
// volume root, plus the file's slash-separated name inside it. Includes
// resolve next to the file and may climb out of its directory with "..".
func SourceFS(relPath string) (fsys fs.FS, name string, err error) {
	fullPath, err := filepath.Abs(relPath)
	if err != nil {
		return nil, "", err
	}
	root := filepath.VolumeName(fullPath) + string(filepath.Separator)
	rel, err := filepath.Rel(root, fullPath)
	if err != nil {
		return nil, "", err
	}
	return os.DirFS(root), filepath.ToSlash(rel), nil
}

// IsObjectFile reports whether path names an encoded program rather than C source.
func IsObjectFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ObjectExt)
}

// ObjectPath derives the default output name for a source file: prog.c -> prog.jbc.
func ObjectPath(srcPath string) string {
	return strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + ObjectExt
}
