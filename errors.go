package bluetooth

import "github.com/pkg/errors"

// Error taxonomy. Operations wrap these with context, match them with
// errors.Is.
var (
	ErrInvalidInput     = errors.New("bluetooth: invalid input")
	ErrCapacityExceeded = errors.New("bluetooth: advertising data capacity exceeded")
	ErrNotFound         = errors.New("bluetooth: not found")
	ErrFieldExists      = errors.New("bluetooth: advertising data field already present")
	ErrNotSupported     = errors.New("bluetooth: not supported by this stack")
	ErrReleased         = errors.New("bluetooth: characteristic handle released")

	errInvalidUUID = errors.Wrap(ErrInvalidInput, "failed to parse UUID")
	errNoWrite     = errors.New("bluetooth: write not permitted")
	errNoNotify    = errors.New("bluetooth: notify/indicate not permitted")
)
