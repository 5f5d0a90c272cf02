package models

import "time"

// FetchLog records one request to the fetch endpoint that carried a url
type FetchLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	RequestID      string    `json:"request_id"`
	KeyFingerprint string    `gorm:"index" json:"key_fingerprint,omitempty"`
	ResourceType   string    `gorm:"index" json:"resource_type"`
	TargetURL      string    `json:"target_url"`
	Host           string    `gorm:"index" json:"host"`
	StatusCode     int       `gorm:"index" json:"status_code"`
	Code           string    `json:"code,omitempty"`
	DurationMs     int       `json:"duration_ms"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
}

func (FetchLog) TableName() string {
	return "fetch_logs"
}
