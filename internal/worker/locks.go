package worker

import "sync"

// DirectoryLocks serializes work inside individual directories. gcov
// names its output files after the source file alone, so two
// invocations running in the same directory would overwrite each
// other's reports. Locks for different directories are independent.
type DirectoryLocks struct {
	mu   sync.Mutex
	dirs map[string]*sync.Mutex
}

// NewDirectoryLocks creates an empty lock set.
func NewDirectoryLocks() *DirectoryLocks {
	return &DirectoryLocks{dirs: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for dir, creating it on first use, and
// returns the matching unlock. Directories are compared by the exact
// path string.
func (dl *DirectoryLocks) Lock(dir string) (unlock func()) {
	dl.mu.Lock()
	entry, ok := dl.dirs[dir]
	if !ok {
		entry = &sync.Mutex{}
		dl.dirs[dir] = entry
	}
	dl.mu.Unlock()

	entry.Lock()
	return entry.Unlock
}
