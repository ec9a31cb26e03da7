package config

import "hash/fnv"

// hashBytes hashes b with FNV-1a. Zero means "no content"; callers treat
// it as an unhashed sentinel, so empty input maps to it explicitly.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
