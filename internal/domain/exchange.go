package domain

// BookWriter is everything a feed adapter may do to the book. Calls must be
// made in the order events arrive from the venue.
type BookWriter interface {
	ProcessSnapshot(snapshot Snapshot) error
	ProcessUpdate(update Update) error
	// ProcessUpdates applies one wire message worth of updates atomically.
	ProcessUpdates(updates []Update) error
}
