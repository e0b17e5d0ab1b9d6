// Package buffer implements the adaptive buffer controller that paces
// segment delivery against a live encode.
//
// A Controller holds one streaming session's rolling metric history and
// derives a buffering strategy from recent encode throughput. It performs no
// I/O and never blocks; the segment server consults it synchronously on
// every segment request. Controllers never return errors: malformed or
// absent input degrades to the balanced fallback strategy.
package buffer
