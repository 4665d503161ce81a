package beds

import "context"

// BedReader reads the bed inventory.
type BedReader interface {
	// ListBeds returns every bed, or only the beds of ward when it is non-empty.
	ListBeds(ctx context.Context, ward string) ([]Bed, error)
	VacantBeds(ctx context.Context, ward string) ([]Bed, error)
	GetBed(ctx context.Context, id string) (Bed, error)
}

// StatusSwapper is the single mutation point for bed status. Implementations
// must apply the change only when the current status equals expected, and
// report false (with a nil error) when it does not.
type StatusSwapper interface {
	// CompareAndSwapStatus clears the bed's holder.
	CompareAndSwapStatus(ctx context.Context, bedID string, expected, next Status) (bool, error)
	// CompareAndSwapHeld records holder on the bed. A bed already in next
	// under the same holder reports true, so a retried swap whose earlier
	// attempt applied is recognised. Moving a bed out of Reserved requires
	// the holder that reserved it.
	CompareAndSwapHeld(ctx context.Context, bedID string, expected, next Status, holder string) (bool, error)
}

// PatientStore persists patient records.
type PatientStore interface {
	UpsertPatient(ctx context.Context, p Patient) (string, error)
	GetPatient(ctx context.Context, id string) (Patient, error)
}

// HistoryAppender records occupancy changes.
type HistoryAppender interface {
	AppendOccupancyHistory(ctx context.Context, entry HistoryEntry) error
}

// RosterReader returns the on-duty specialists per ward.
type RosterReader interface {
	Roster(ctx context.Context) (Roster, error)
}

// Inventory is the full collaborator contract consumed by the decision core.
type Inventory interface {
	BedReader
	StatusSwapper
	PatientStore
	HistoryAppender
	RosterReader
}
