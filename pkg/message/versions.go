package message

// Versions is the ledger entry a channel keeps for one key. A nil field
// means absent. It carries no locking of its own; the owning channel
// guards it.
type Versions struct {
	// Current is the version returned to readers.
	Current *Message

	// Pending is a proposed next version. It is written when the channel
	// has replication subscribers and is never promoted to Current.
	Pending *Message

	// Deleted is the tombstone: the last Current at deletion time.
	Deleted *Message
}

// Live reports whether the entry blocks a create of the same key.
func (v *Versions) Live() bool {
	return v != nil && (v.Current != nil || v.Pending != nil)
}
