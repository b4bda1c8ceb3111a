package manifest

import (
	"errors"
	"fmt"
)

// ErrManifestParse is wrapped by every error returned for a malformed manifest.
var ErrManifestParse = errors.New("manifest parse error")

func parseErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrManifestParse, fmt.Sprintf(format, args...))
}
