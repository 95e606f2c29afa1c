// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

// Observer receives notifications about the engine activity.
//
// Methods are called synchronously from the request loop and from the
// sweeper, so implementations must be fast and safe for concurrent use.
type Observer interface {
	// FragmentAccepted is called after a fragment has been stored.
	FragmentAccepted(frag Fragment)

	// FragmentRejected is called when a data query cannot be decoded.
	FragmentRejected(err error)

	// FileCompleted is called when a transfer has been assembled.
	FileCompleted(file CompletedFile)

	// AssemblyFailed is called when a drained transfer is discarded.
	AssemblyFailed(id string, err error)

	// InflightTransfers is called after each sweep with the number
	// of transfers still in the store.
	InflightTransfers(count int)
}

// NopObserver is an [Observer] that does nothing.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) FragmentAccepted(Fragment) {}
func (NopObserver) FragmentRejected(error) {}
func (NopObserver) FileCompleted(CompletedFile) {}
func (NopObserver) AssemblyFailed(string, error) {}
func (NopObserver) InflightTransfers(int) {}
