package sweeper

import (
	"time"

	"gorm.io/datatypes"
)

// Job is the execution record of one sweep pass, whether triggered by
// the scheduler or an operator.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;type:char(26)" json:"id"`
	TriggeredBy string         `gorm:"column:triggered_by;type:varchar(20);not null" json:"triggered_by"` // scheduler|admin
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`    // pending|running|success|failed
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	Report      datatypes.JSON `gorm:"column:report" json:"report,omitempty"`
}

func (Job) TableName() string {
	return "sweep_jobs"
}
