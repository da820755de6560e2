// Package utils holds small helpers shared by the service layer.
package utils

import "hash/fnv"

// StableIndex maps key onto [0, n) so the same key always lands on the same
// slot. It returns -1 when n is not positive.
func StableIndex(key string, n int) int {
	if n <= 0 {
		return -1
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}
