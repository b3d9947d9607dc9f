package device

import (
	"context"
	"fmt"
	"regexp"

	apperrors "github.com/tendant/simple-claim/pkg/errors"
)

// deviceIDPattern matches a 32-character hexadecimal device id. Anchored to
// the full string: a longer string containing a valid id must not pass.
var deviceIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)

// ValidateDeviceID checks a candidate device id before any store mutation:
// first the lexical format, then whether the device already has an owner.
// The ownership pre-check is best-effort; Claim re-checks atomically at
// write time.
func (s *Service) ValidateDeviceID(ctx context.Context, deviceID string) error {
	if !deviceIDPattern.MatchString(deviceID) {
		return apperrors.New(apperrors.ErrCodeMalformedDeviceID, "the device id is incorrectly formatted")
	}

	snap, err := s.store.Get(ctx, deviceClaimedByPath(deviceID))
	if err != nil {
		return fmt.Errorf("failed to check device ownership: %w", err)
	}
	if snap.Exists() {
		return apperrors.New(apperrors.ErrCodeAlreadyClaimed, "the device has already been claimed")
	}
	return nil
}
