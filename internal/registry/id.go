package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Id prefixes of locally registered devices. Remote and seed ids never use them.
const (
	PrefixQR     = "qr"
	PrefixSerial = "serial"
)

// NewProvisionalID returns "<prefix>-<unix millis>-<random>".
func NewProvisionalID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}
