package quiz

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// Partition draws, for each subset name, subsetSize distinct indices
// uniformly at random from [0, questionCount), sorted ascending. Subsets are
// sampled independently, so overlap across subsets is expected; this is a
// usability sampling device, not a security partition. Each call is
// independently random — determinism holds only within one generated map.
func Partition(questionCount int, subsetNames []string, subsetSize int) (map[string][]int, error) {
	if subsetSize <= 0 {
		return nil, fmt.Errorf("%w: subset size must be positive, got %d", ErrConfiguration, subsetSize)
	}
	if len(subsetNames) == 0 {
		return nil, fmt.Errorf("%w: no subset names", ErrConfiguration)
	}
	if subsetSize > questionCount {
		return nil, fmt.Errorf("%w: subset size %d exceeds question count %d", ErrConfiguration, subsetSize, questionCount)
	}

	subsets := make(map[string][]int, len(subsetNames))
	for _, name := range subsetNames {
		picked := make(map[int]struct{}, subsetSize)
		indices := make([]int, 0, subsetSize)
		for len(indices) < subsetSize {
			idx := rand.IntN(questionCount)
			if _, dup := picked[idx]; dup {
				continue
			}
			picked[idx] = struct{}{}
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		subsets[name] = indices
	}
	return subsets, nil
}

// RandomSubsetName picks a uniformly random name from the fixed alphabet.
// Used by the fallback path when the requested subset is unknown.
func RandomSubsetName(subsetNames []string) string {
	return subsetNames[rand.IntN(len(subsetNames))]
}

// RandomSample draws subsetSize distinct indices from [0, questionCount),
// sorted ascending.
func RandomSample(questionCount, subsetSize int) ([]int, error) {
	m, err := Partition(questionCount, []string{"_"}, subsetSize)
	if err != nil {
		return nil, err
	}
	return m["_"], nil
}
