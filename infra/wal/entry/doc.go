// Package entry is the write-ahead log for order intents. Every place
// and cancel is framed, checksummed, and appended before the matching
// engine sees it, so a restart can rebuild the books by replaying the
// log on top of the last snapshot.
package entry
