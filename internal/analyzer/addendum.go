package analyzer

import (
	"strconv"
	"strings"
)

// BlockAddendum tracks, per basic block, how many assignments to each
// original variable name the path has accumulated up to and including that
// block. The counters drive the path-local SSA renaming: version 0 renders
// as the bare name, version k as name<k>.
type BlockAddendum struct {
	counts map[string]int
}

func newBlockAddendum() *BlockAddendum {
	return &BlockAddendum{counts: make(map[string]int)}
}

// Count returns the number of assignments observed for name.
func (a *BlockAddendum) Count(name string) int {
	return a.counts[name]
}

func (a *BlockAddendum) increment(name string) {
	a.counts[name]++
}

// VersionedName renders an original variable name at version k.
func VersionedName(name string, k int) string {
	if k <= 0 {
		return name
	}
	return name + "<" + strconv.Itoa(k) + ">"
}

// OriginalName strips the version tag from a rendered variable name.
func OriginalName(name string) string {
	if i := strings.IndexByte(name, '<'); i >= 0 {
		return name[:i]
	}
	return name
}

// VersionOf returns the version tag of a rendered variable name.
func VersionOf(name string) int {
	i := strings.IndexByte(name, '<')
	if i < 0 || !strings.HasSuffix(name, ">") {
		return 0
	}
	k, err := strconv.Atoi(name[i+1 : len(name)-1])
	if err != nil {
		return 0
	}
	return k
}
