// Package metadata records which adults hold which chunks.
//
// Elders write a chunk to the adults closest to its name and remember them
// as its holders. Reads are sent to the recorded holders, and when an adult
// leaves, the chunks it held are found through the reverse index.
//
// There are two implementations of the Store interface: InmemStore and
// BadgerStore, which persists records in a badger database and keeps an
// InmemStore as a cache.
package metadata
