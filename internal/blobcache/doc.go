// Package blobcache keeps recently fetched blobs in memory.
//
// Entries expire after a TTL and the oldest entry is evicted when the cache
// is full. Metadata documents are write-once and addressed by their blob
// identifier, so a cached copy never goes stale before it expires.
package blobcache
