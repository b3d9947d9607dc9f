package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	apperrors "github.com/tendant/simple-claim/pkg/errors"
	"github.com/tendant/simple-claim/pkg/store"
)

// Service implements the device-claim protocol: validating device ids,
// atomically transferring ownership, releasing claims, and reconstructing
// the ordered device list from the denormalized store.
type Service struct {
	store store.Store
}

// NewService creates a device service over the given store
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Claim atomically records that deviceID is owned by userID. One
// conditional multi-location write sets the device-side ownership pointer
// and creates the user-side claim record with a server-assigned timestamp;
// partial application is never observable.
func (s *Service) Claim(ctx context.Context, userID, deviceID string) error {
	if userID == "" {
		return apperrors.NotAuthenticated("please login")
	}
	if err := s.ValidateDeviceID(ctx, deviceID); err != nil {
		return err
	}

	pointerPath := deviceClaimedByPath(deviceID)
	err := s.store.UpdateIfAbsent(ctx, pointerPath, map[string]interface{}{
		pointerPath: userID,
		userDevicePath(userID, deviceID): map[string]interface{}{
			"claimedOn": store.ServerTimestamp,
		},
	})
	if errors.Is(err, store.ErrPathExists) {
		// lost the race to a concurrent claimant
		return apperrors.New(apperrors.ErrCodeAlreadyClaimed, "the device has already been claimed")
	}
	if err != nil {
		return fmt.Errorf("failed to claim device: %w", err)
	}

	slog.Info("Device claimed", "deviceId", deviceID, "userId", userID)
	return nil
}

// Release atomically removes the ownership pointer and the claim record as
// one multi-location delete; the store never holds one without the other.
func (s *Service) Release(ctx context.Context, userID, deviceID string) error {
	if userID == "" {
		return apperrors.NotAuthenticated("please login")
	}

	err := s.store.Update(ctx, map[string]interface{}{
		deviceClaimedByPath(deviceID):    nil,
		userDevicePath(userID, deviceID): nil,
	})
	if err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}

	slog.Info("Device released", "deviceId", deviceID, "userId", userID)
	return nil
}

// ReleaseAll releases every device userID has claimed, concurrently. The
// first failure is returned; releases that already applied stay applied.
func (s *Service) ReleaseAll(ctx context.Context, userID string) error {
	records, err := s.claimRecords(ctx, userID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for deviceID := range records {
		wg.Add(1)
		go func(deviceID string) {
			defer wg.Done()
			if err := s.Release(ctx, userID, deviceID); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(deviceID)
	}
	wg.Wait()

	return firstErr
}

// List returns the user's claimed devices ordered by claim time, earliest
// first. Claim records whose DeviceInfo is missing are silently filtered:
// a dangling claim is a data-hygiene case, not an error.
func (s *Service) List(ctx context.Context, userID string) ([]Info, error) {
	records, err := s.claimRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.aggregate(ctx, records)
}

// HasPermission reports whether the DeviceInfo record is currently readable
// by this caller. A read-permission probe, not an ownership check.
func (s *Service) HasPermission(ctx context.Context, deviceID string) bool {
	_, err := s.store.Get(ctx, deviceInfoPath(deviceID))
	return err == nil
}

// claimRecords reads the raw claim rows stored under the user
func (s *Service) claimRecords(ctx context.Context, userID string) (map[string]claimRecord, error) {
	if userID == "" {
		return nil, apperrors.NotAuthenticated("please login")
	}

	snap, err := s.store.Get(ctx, userDevicesPath(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read claim records: %w", err)
	}
	return decodeClaimRecords(snap)
}

func decodeClaimRecords(snap store.Snapshot) (map[string]claimRecord, error) {
	if !snap.Exists() {
		return nil, nil
	}
	var records map[string]claimRecord
	if err := snap.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode claim records: %w", err)
	}
	return records, nil
}

// aggregate fetches DeviceInfo for every claimed device concurrently, drops
// devices with no info record, and orders the survivors by claim timestamp
// ascending
func (s *Service) aggregate(ctx context.Context, records map[string]claimRecord) ([]Info, error) {
	devices := make([]Info, 0, len(records))
	if len(records) == 0 {
		return devices, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var fetchErr error
	for deviceID := range records {
		wg.Add(1)
		go func(deviceID string) {
			defer wg.Done()

			snap, err := s.store.Get(ctx, deviceInfoPath(deviceID))
			if err != nil {
				mu.Lock()
				if fetchErr == nil {
					fetchErr = fmt.Errorf("failed to read device info for %s: %w", deviceID, err)
				}
				mu.Unlock()
				return
			}
			if !snap.Exists() {
				// dangling claim: filtered, not an error
				slog.Debug("Dropping claim with no device info", "deviceId", deviceID)
				return
			}

			var info Info
			if err := snap.Decode(&info); err != nil {
				mu.Lock()
				if fetchErr == nil {
					fetchErr = err
				}
				mu.Unlock()
				return
			}
			if info.DeviceID == "" {
				info.DeviceID = deviceID
			}

			mu.Lock()
			devices = append(devices, info)
			mu.Unlock()
		}(deviceID)
	}
	wg.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return records[devices[i].DeviceID].ClaimedOn < records[devices[j].DeviceID].ClaimedOn
	})
	return devices, nil
}
