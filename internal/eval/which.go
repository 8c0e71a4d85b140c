package eval

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// resolvePath finds the executable for name. Names containing a slash are
// used as given; anything else is searched for along $PATH.
func resolvePath(name string, env *Env) (string, bool) {
	if name == "" {
		return "", false
	}
	if strings.ContainsRune(name, '/') {
		return name, true
	}
	for _, dir := range pathList(env) {
		if dir == "" {
			dir = "."
		}
		full := filepath.Join(dir, name)
		if canExec(full) {
			return full, true
		}
	}
	return "", false
}

func pathList(env *Env) []string {
	if p := env.Get("PATH"); p != "" {
		return strings.Split(p, string(os.PathListSeparator))
	}
	return []string{"/usr/local/bin", "/usr/bin", "/bin"}
}

// canExec reports whether path is a regular file the shell may execute.
func canExec(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
