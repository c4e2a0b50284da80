package store

import "time"

// SavedSession is a persisted session profile plus the record of its last
// run: where it connects, the last geometry, and how it ended. Byte counters
// feed the per-session stats view.
type SavedSession struct {
	ID         string     `gorm:"primaryKey;size:64" json:"id"`
	Title      string     `gorm:"not null;default:''" json:"title"`
	Folder     string     `gorm:"not null;default:''" json:"folder"`
	Endpoint   string     `gorm:"not null" json:"endpoint"`
	HostType   string     `gorm:"not null;default:local" json:"host_type"` // local or ssh
	Host       string     `json:"host"`
	Port       int        `gorm:"not null;default:0" json:"port"`
	Username   string     `json:"username"`
	Shell      string     `json:"shell"`
	Cols       int        `gorm:"not null;default:0" json:"cols"`
	Rows       int        `gorm:"not null;default:0" json:"rows"`
	SortOrder  int        `gorm:"not null;default:0" json:"sort_order"`
	Status     string     `gorm:"not null;default:active" json:"status"`
	BytesIn    int64      `gorm:"not null;default:0" json:"bytes_in"`
	BytesOut   int64      `gorm:"not null;default:0" json:"bytes_out"`
	Reconnects int        `gorm:"not null;default:0" json:"reconnects"`
	LastError  string     `json:"last_error"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at"`
}

// Setting is a global key/value configuration row.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
