package core

import "time"

// HealthState is the computed health of a service.
type HealthState string

const (
	HealthNormal  HealthState = "NORMAL"
	HealthWarning HealthState = "WARNING"
	HealthError   HealthState = "ERROR"
)

// Host is a cluster node advertising capacity and hosting services.
type Host struct {
	URL         string    `gorm:"primaryKey;size:255"`
	Address     string    `gorm:"size:255"`
	MaxLoad     float64   `gorm:"not null;default:0"` // 0 means unlimited
	Cores       int       `gorm:"not null;default:0"`
	Online      bool      `gorm:"not null"`
	Maintenance bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Available reports whether the host may receive new work.
func (h *Host) Available() bool {
	return h.Online && !h.Maintenance
}

// Service is one handler instance of a job type on a host.
type Service struct {
	HostURL     string      `gorm:"primaryKey;size:255"`
	JobType     string      `gorm:"primaryKey;size:255"`
	Path        string      `gorm:"size:255"`
	Online      bool        `gorm:"not null"`
	Maintenance bool        `gorm:"not null;default:false"`
	State       HealthState `gorm:"index;size:20;not null;default:'NORMAL'"`

	// Signatures of the jobs that moved the service into WARNING and ERROR.
	WarningTrigger int64
	ErrorTrigger   int64
	// Failures of other signatures seen while in WARNING.
	FailureCount int

	StateChangedAt *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Available reports whether the service itself may receive new work.
// Host availability is checked separately.
func (s *Service) Available() bool {
	return s.Online && !s.Maintenance && s.State != HealthError
}

// ServiceLoad is a placement candidate returned by ServicesByLoad.
type ServiceLoad struct {
	*Service

	HostLoad    float64 // load of active jobs on the host
	ServiceLoad float64 // load of active jobs of this type on the host
	HostMaxLoad float64 // advertised host capacity, 0 means unlimited
}

// HasCapacity reports whether the host can take an extra job of the given load.
func (sl ServiceLoad) HasCapacity(load float64) bool {
	if sl.HostMaxLoad <= 0 {
		return true
	}
	return sl.HostLoad+load <= sl.HostMaxLoad
}
