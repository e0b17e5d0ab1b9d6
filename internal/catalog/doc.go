// Package catalog persists the media catalog entries transcoded output is
// published against.
//
// Jobs are matched back to catalog records through an ordered chain of
// matcher strategies, and a periodic reconciler keeps ready flags in
// agreement with what actually exists on disk.
package catalog
