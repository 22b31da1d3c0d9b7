//go:build !linux

package main

// availableMemory has no portable probe off Linux. Zero steers model
// auto-pick to the smallest catalog entry; users who want a bigger model set
// model.size explicitly.
func availableMemory() int64 {
	return 0
}
