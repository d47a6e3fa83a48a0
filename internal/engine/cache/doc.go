// Package cache provides file-based caching with TTL expiration for dataset
// descriptors.
//
// Describing a gpubox observation means opening every coarse-channel file
// and walking its HDU headers. The cache keeps the resulting descriptor on
// disk so repeated plan, describe and run invocations over unchanged files
// skip that scan. Key features:
//   - File-based storage in ~/.mwapipe/cache/
//   - Configurable TTL (default 1 hour) via config file or flag
//   - Automatic expiration and cleanup of stale entries
//   - SHA256-based cache keys over file paths, sizes and modification times
package cache
