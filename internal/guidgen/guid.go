// Package guidgen is the GUID-generation collaborator used to mint a
// SegmentFileSetIdentifier. It wraps
// github.com/google/uuid, the GUID library used elsewhere in the example
// corpus (avogabo-EDRmount, quadgatefoundation-fluxor).
package guidgen

import "github.com/google/uuid"

// New returns a fresh random (version 4) GUID in its raw 16-byte form,
// matching the on-wire layout of DiskSMART.SegmentFileSetIdentifier.
func New() [16]byte {
	id := uuid.New()
	var out [16]byte
	copy(out[:], id[:])
	return out
}
