// Package encoder invokes ffmpeg to produce segmented HLS output and parses
// its machine-readable progress stream into normalized samples.
//
// The encoder is always launched with an explicit argument list and working
// directory, never through a shell. Progress arrives on stdout via
// `-progress pipe:1` key=value blocks; a stalled encoder simply stops
// producing samples and the scheduler's watchdog handles it.
package encoder
