package attachment

import (
	"errors"

	"github.com/ozolins/attachup/internal/common"
)

// isConnectivity reports whether err is a transport-level failure eligible
// for retry, as opposed to a well-formed error response from the origin.
func isConnectivity(err error) bool {
	return errors.Is(err, common.ErrConnectivity)
}
