package syncer

import "path/filepath"

type ignoreList []string

// match reports whether a directory entry name matches one of the glob
// patterns. Malformed patterns never match; config validation rejects
// them up front.
func (l ignoreList) match(name string) bool {
	for _, pattern := range l {
		matched, err := filepath.Match(pattern, name)
		if err == nil && matched {
			return true
		}
	}

	return false
}
