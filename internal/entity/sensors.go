package entity

import (
	"github.com/yourusername/dwbridge/internal/coordinator"
)

// Sensors는 읽기 전용 숫자 센서 어댑터입니다
type Sensors struct {
	cams   *coordinator.CameraCoordinator
	server *coordinator.ServerCoordinator
}

// NewSensors는 새로운 센서 어댑터를 생성합니다
func NewSensors(cams *coordinator.CameraCoordinator, server *coordinator.ServerCoordinator) *Sensors {
	return &Sensors{cams: cams, server: server}
}

// Values는 현재 센서 값을 반환합니다
func (s *Sensors) Values() SensorValues {
	total, used, available := ExtractLicenseCounts(s.server.Data().Licenses)

	return SensorValues{
		CameraCount:      len(s.cams.Cameras()),
		LicenseTotal:     total,
		LicenseUsed:      used,
		LicenseAvailable: available,
		Stale:            s.cams.Stale() || s.server.Stale(),
		Unavailable:      s.cams.AuthFailed() || s.server.AuthFailed(),
	}
}

// ExtractLicenseCounts는 라이선스 요약에서 (total, used, available)을
// 추출합니다. 서버 빌드에 따라 스키마가 달라 여러 형태를 지원합니다:
//
//	{ "digital": { "available": 24, "inUse": 22, "total": 24 } }
//
// 또는 총계 키가 최상위/summary 아래에 있는 일반 형태.
// available이 없으면 total - used로 계산합니다.
func ExtractLicenseCounts(summary map[string]interface{}) (total, used, available *int) {
	if len(summary) == 0 {
		return nil, nil, nil
	}

	if digital, ok := summary["digital"].(map[string]interface{}); ok {
		total = toInt(digital["total"])
		used = toInt(digital["inUse"])
		available = toInt(digital["available"])
	} else {
		total = firstInt(summary, "total", "totalLicenses", "licensesTotal")
		used = firstInt(summary, "used", "usedLicenses", "licensesUsed", "inUse")
		available = firstInt(summary, "available", "free", "remaining")

		if total == nil {
			if nested, ok := summary["summary"].(map[string]interface{}); ok {
				total = firstInt(nested, "total", "totalLicenses")
				if used == nil {
					used = firstInt(nested, "used", "usedLicenses", "inUse")
				}
				if available == nil {
					available = firstInt(nested, "available", "free", "remaining")
				}
			}
		}
	}

	// available = total - used 유도
	if available == nil && total != nil && used != nil {
		v := *total - *used
		available = &v
	}

	return total, used, available
}

func firstInt(m map[string]interface{}, keys ...string) *int {
	for _, key := range keys {
		if v := toInt(m[key]); v != nil {
			return v
		}
	}
	return nil
}

func toInt(v interface{}) *int {
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		return &n
	case int64:
		i := int(n)
		return &i
	}
	return nil
}
