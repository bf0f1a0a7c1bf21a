// Package registry builds the display list of devices from the remote API,
// the local provisional queue and built-in fallback data.
package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dtroode/puricare-client/internal/model"
)

// PlaceholderName is the canonical label of a device that hasn't been named.
const PlaceholderName = "새 기기"

// placeholderPattern matches the labels registration flows give new devices,
// e.g. "새 기기 (QR 등록)" or "New device (serial)". The English label must be
// the whole name so user names like "New Devices Hub" are kept.
var placeholderPattern = regexp.MustCompile(`^\s*(?:새\s*기기|(?i:new\s+device)(?:\s*\(.*\))?\s*$)`)

// Remote is the outcome of a remote device fetch. An error is data here:
// it selects the fallback list instead of failing resolution.
type Remote struct {
	Devices []model.DeviceRecord
	Err     error
}

// RemoteOK wraps a successful fetch.
func RemoteOK(devices []model.DeviceRecord) Remote {
	return Remote{Devices: devices}
}

// RemoteFailed wraps a failed fetch.
func RemoteFailed(err error) Remote {
	return Remote{Err: err}
}

// RemoteUnavailable is used when no remote source is configured or the
// session has no token.
func RemoteUnavailable() Remote {
	return Remote{Err: model.ErrRemoteUnavailable}
}

// Usable reports whether the remote list becomes the base list.
func (r Remote) Usable() bool {
	return r.Err == nil && len(r.Devices) > 0
}

// Resolve merges the sources into one list: the remote list if usable,
// otherwise fallback, followed by every local record. Order within each part
// is preserved and nothing is dropped. Local placeholder names are normalized.
func Resolve(remote Remote, local, fallback []model.DeviceRecord) []model.DeviceRecord {
	base := fallback
	if remote.Usable() {
		base = remote.Devices
	}

	out := make([]model.DeviceRecord, 0, len(base)+len(local))
	out = append(out, base...)
	for _, rec := range local {
		rec.Name = NormalizeName(rec.Name)
		out = append(out, rec)
	}
	return out
}

// NormalizeName maps placeholder and empty names to PlaceholderName.
func NormalizeName(name string) string {
	if strings.TrimSpace(name) == "" || placeholderPattern.MatchString(name) {
		return PlaceholderName
	}
	return name
}

// CheckUnique returns ErrIDCollision naming the first repeated id. Ids are
// unique by construction; a collision is a producer bug worth logging.
func CheckUnique(devices []model.DeviceRecord) error {
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if _, ok := seen[d.ID]; ok {
			return fmt.Errorf("%w: %q", model.ErrIDCollision, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
