package registry

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/puricare-client/internal/model"
)

func TestDefaultSeed(t *testing.T) {
	seed := DefaultSeed()
	require.Len(t, seed, 3)

	assert.Equal(t, []string{"living", "bath", "master"}, ids(seed))
	assert.Equal(t, model.DeviceRecord{
		ID:          "living",
		Name:        "Living room",
		Subtitle:    "온라인 · 자동 모드 · 약풍",
		LastUpdated: "10분 전 (목업 데이터)",
		AQI:         32,
		AQILabel:    "좋음",
		RoomType:    model.RoomLiving,
	}, seed[0])
	assert.Equal(t, "보통", seed[1].AQILabel)
	assert.Equal(t, model.RoomMaster, seed[2].RoomType)
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}

	t.Run("empty path uses built-in", func(t *testing.T) {
		got, err := LoadSeed("")
		require.NoError(t, err)
		assert.Equal(t, DefaultSeed(), got)
	})

	t.Run("custom file", func(t *testing.T) {
		p := write("ok.yaml", "devices:\n  - id: office\n    name: Office\n    aqi: 51\n    aqiLabel: 나쁨\n    roomType: small\n")
		got, err := LoadSeed(p)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "office", got[0].ID)
		assert.Equal(t, 51.0, got[0].AQI)
		assert.Equal(t, model.RoomSmall, got[0].RoomType)
	})

	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "devices: [\n"},
		{name: "missing id", content: "devices:\n  - name: x\n"},
		{name: "bad room", content: "devices:\n  - id: a\n    roomType: garage\n"},
		{name: "duplicate id", content: "devices:\n  - id: a\n  - id: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSeed(write(tt.name+".yaml", tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSeed(filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestNewProvisionalID(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	id := NewProvisionalID(PrefixQR, now)
	assert.Regexp(t, regexp.MustCompile(`^qr-1700000000123-[0-9a-f]{8}$`), id)

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewProvisionalID(PrefixSerial, now)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
