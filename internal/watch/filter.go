package watch

import "strings"

// scratchFile reports whether a file name matches a platform scratch
// pattern: office lock files, temp suffixes, or a leading dot.
func scratchFile(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".tmp") || strings.HasSuffix(lower, ".temp")
}
