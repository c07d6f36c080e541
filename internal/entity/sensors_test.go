package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/coordinator"
)

func intPtr(v int) *int { return &v }

func TestExtractLicenseCounts(t *testing.T) {
	cases := []struct {
		name      string
		summary   map[string]interface{}
		total     *int
		used      *int
		available *int
	}{
		{
			name: "digital block",
			summary: map[string]interface{}{
				"digital": map[string]interface{}{"total": float64(24), "inUse": float64(22), "available": float64(2)},
			},
			total: intPtr(24), used: intPtr(22), available: intPtr(2),
		},
		{
			name:    "top-level generic keys",
			summary: map[string]interface{}{"total": float64(10), "used": float64(4)},
			total:   intPtr(10), used: intPtr(4), available: intPtr(6), // total - used 유도
		},
		{
			name: "nested summary",
			summary: map[string]interface{}{
				"summary": map[string]interface{}{"total": float64(8), "inUse": float64(8)},
			},
			total: intPtr(8), used: intPtr(8), available: intPtr(0),
		},
		{
			name:    "unrecognized",
			summary: map[string]interface{}{"raw": "free text"},
		},
		{
			name: "empty",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, used, available := ExtractLicenseCounts(tc.summary)
			assert.Equal(t, tc.total, total)
			assert.Equal(t, tc.used, used)
			assert.Equal(t, tc.available, available)
		})
	}
}

func TestSensorValues(t *testing.T) {
	backend := &fakeBackend{
		cameras: []client.Device{{ID: "cam1"}, {ID: "cam2"}, {ID: "cam3"}},
		users:   []client.User{{ID: "u1"}},
	}

	camCoord := coordinator.NewCameraCoordinator(backend, time.Second, zap.NewNop())
	require.NoError(t, camCoord.Refresh(context.Background()))

	serverCoord := coordinator.NewServerCoordinator(backend, time.Second, zap.NewNop())
	require.NoError(t, serverCoord.Refresh(context.Background()))

	sensors := NewSensors(camCoord, serverCoord)
	values := sensors.Values()

	assert.Equal(t, 3, values.CameraCount)
	assert.False(t, values.Stale)
	// fakeBackend는 빈 라이선스 요약을 반환
	assert.Nil(t, values.LicenseTotal)
}
