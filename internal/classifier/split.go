package classifier

import (
	"math"
	"math/rand"
	"sort"
)

// stratifiedSplit partitions sample indices so every class keeps roughly the
// same share in both parts. Each class contributes round(testSize*n) samples
// to the held-out part, clamped so that both parts get at least one.
// Callers must ensure each class has at least two samples.
func stratifiedSplit(y []int, numClasses int, testSize float64, seed int64) (train, test []int) {
	byClass := make([][]int, numClasses)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	rng := rand.New(rand.NewSource(seed))
	for _, idx := range byClass {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(testSize * float64(len(idx))))
		nTest = max(nTest, 1)
		nTest = min(nTest, len(idx)-1)

		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}
