package message

import "time"

// Audit headers stamped by the broker on writes.
const (
	HeaderCreated    = "Created"
	HeaderCreatedBy  = "Created-By"
	HeaderModified   = "Modified"
	HeaderModifiedBy = "Modified-By"
	HeaderDeleted    = "Deleted"
	HeaderDeletedBy  = "Deleted-By"

	// HeaderSourceVersion is the version the caller based its write on.
	// It is carried through on update but not checked.
	HeaderSourceVersion = "Source-Version"
)

// TimeFormat is the layout of audit timestamps.
const TimeFormat = time.RFC3339Nano

// Stamp records who did what and when on h. The time is stored in UTC.
func (h Headers) Stamp(byHeader, atHeader, token string, at time.Time) {
	h[byHeader] = token
	h[atHeader] = at.UTC().Format(TimeFormat)
}
