package models

import "time"

// FunctionInvocation records duration/status metrics for one handler
// invocation. Rows are written through the bounded-retry audit queue,
// never inline on the request path.
type FunctionInvocation struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	FunctionName  string    `gorm:"index;size:64;not null" json:"function_name"`
	Status        string    `gorm:"size:16;not null" json:"status"`
	DurationMs    int64     `json:"duration_ms"`
	Detail        string    `gorm:"type:text" json:"detail"`
	CorrelationId string    `gorm:"size:64" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
