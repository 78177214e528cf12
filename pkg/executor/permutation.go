package executor

import (
	"math/rand/v2"
)

// permutationStream separates worker permutations from other PCG users.
const permutationStream = 0x71756572796f6f72

// permutation returns a deterministic ordering of 0..n-1 for the given
// worker. The same worker always gets the same order.
func permutation(n, worker int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	rng := rand.New(rand.NewPCG(uint64(worker), permutationStream)) //nolint:gosec // not security sensitive

	rng.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	return order
}
