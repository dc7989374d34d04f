package coverage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// SortKey selects the ordering of files in reports.
type SortKey int

const (
	// SortFilename orders files by name, with digit runs compared
	// numerically so file2 sorts before file10.
	SortFilename SortKey = iota
	// SortUncoveredNumber orders by the absolute number of uncovered
	// lines.
	SortUncoveredNumber
	// SortUncoveredPercent orders by the fraction of uncovered lines.
	SortUncoveredPercent
)

// ParseSortKey maps a configuration string to a sort key.
func ParseSortKey(name string) (SortKey, error) {
	switch name {
	case "", "filename":
		return SortFilename, nil
	case "uncovered-number":
		return SortUncoveredNumber, nil
	case "uncovered-percent":
		return SortUncoveredPercent, nil
	default:
		return SortFilename, fmt.Errorf("unknown sort key %q", name)
	}
}

// Container accumulates per-file coverage from many fragments. Inserts
// for different files proceed in parallel; inserts for the same file
// serialize on a per-file lock.
type Container struct {
	mu    sync.Mutex
	files map[string]*fileSlot
}

type fileSlot struct {
	mu sync.Mutex
	fc *FileCoverage
}

// NewContainer returns an empty container.
func NewContainer() *Container {
	return &Container{files: make(map[string]*fileSlot)}
}

// Insert merges a fragment into the container. The fragment is cloned
// on adoption, so the caller's copy stays valid.
func (c *Container) Insert(fc *FileCoverage, opts MergeOptions) error {
	slot := c.slotFor(fc.Filename)

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.fc == nil {
		slot.fc = fc.Clone()
		return nil
	}
	return slot.fc.Merge(fc, opts)
}

// Merge folds every file of another container into c. The other
// container is not modified.
func (c *Container) Merge(other *Container, opts MergeOptions) error {
	for _, filename := range other.Filenames() {
		if err := c.Insert(other.Get(filename), opts); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the coverage for a file, or nil when the file is
// unknown.
func (c *Container) Get(filename string) *FileCoverage {
	c.mu.Lock()
	slot, ok := c.files[filename]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.fc
}

// Len returns the number of files with coverage.
func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.files)
}

// IsEmpty reports whether no file has been inserted.
func (c *Container) IsEmpty() bool {
	return c.Len() == 0
}

// Filenames returns all filenames in natural sort order.
func (c *Container) Filenames() []string {
	c.mu.Lock()
	filenames := make([]string, 0, len(c.files))
	for filename := range c.files {
		filenames = append(filenames, filename)
	}
	c.mu.Unlock()

	sort.Slice(filenames, func(i, j int) bool {
		return naturalLess(filenames[i], filenames[j])
	})
	return filenames
}

// SortedFilenames returns filenames ordered by the given key. Metric
// keys break ties by natural filename order; reverse flips the metric
// comparison but leaves the tiebreak alone so output stays stable.
func (c *Container) SortedFilenames(key SortKey, reverse bool) []string {
	filenames := c.Filenames()
	if key == SortFilename {
		if reverse {
			for i, j := 0, len(filenames)-1; i < j; i, j = i+1, j-1 {
				filenames[i], filenames[j] = filenames[j], filenames[i]
			}
		}
		return filenames
	}

	metric := make(map[string]float64, len(filenames))
	for _, filename := range filenames {
		stats := c.Get(filename).Stats()
		uncovered := stats.Line.Total - stats.Line.Covered
		switch key {
		case SortUncoveredNumber:
			metric[filename] = float64(uncovered)
		case SortUncoveredPercent:
			if stats.Line.Total == 0 {
				// Files with no measurable lines sort past fully
				// uncovered ones.
				metric[filename] = 1.1
			} else {
				metric[filename] = float64(uncovered) / float64(stats.Line.Total)
			}
		}
	}

	sort.SliceStable(filenames, func(i, j int) bool {
		mi, mj := metric[filenames[i]], metric[filenames[j]]
		if mi != mj {
			if reverse {
				return mi > mj
			}
			return mi < mj
		}
		return naturalLess(filenames[i], filenames[j])
	})
	return filenames
}

// Stats sums the metrics of every file.
func (c *Container) Stats() SummarizedStats {
	var stats SummarizedStats
	for _, filename := range c.Filenames() {
		stats.Add(c.Get(filename).Stats())
	}
	return stats
}

// slotFor returns the slot for a filename, creating it if needed.
func (c *Container) slotFor(filename string) *fileSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.files[filename]
	if !ok {
		slot = &fileSlot{}
		c.files[filename] = slot
	}
	return slot
}

// naturalLess compares filenames case-insensitively, treating runs of
// digits as numbers.
func naturalLess(a, b string) bool {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		ca, cb := ra[i], rb[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	if len(ra)-i != len(rb)-j {
		return len(ra)-i < len(rb)-j
	}
	return a < b
}
