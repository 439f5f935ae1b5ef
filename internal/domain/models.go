package domain

import (
	"strings"
	"time"
)

type MonitorID string

// Monitor is an operator-declared endpoint. Recipients is the comma-joined
// list as stored; nil means no recipients were ever set.
type Monitor struct {
	ID         MonitorID `json:"id"`
	Name       string    `json:"name"`
	Target     string    `json:"target"`
	Recipients *string   `json:"recipients,omitempty"`
}

// RecipientList splits the stored recipients into trimmed, non-empty entries.
func (m Monitor) RecipientList() []string {
	if m.Recipients == nil {
		return nil
	}
	return SplitRecipients(*m.Recipients)
}

type CheckResult struct {
	ID         int64     `json:"id"`
	MonitorID  MonitorID `json:"monitor_id"`
	Success    bool      `json:"success"`
	StatusCode *int      `json:"status_code"` // nil for transport failures
	Timestamp  time.Time `json:"timestamp"`
}

type Alert struct {
	ID        int64      `json:"id"`
	MonitorID MonitorID  `json:"monitor_id"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	Sent      bool       `json:"sent"`
	SentAt    *time.Time `json:"sent_at,omitempty"` // set iff Sent
}

func SplitRecipients(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinRecipients returns nil for an empty list so the stored value is NULL.
func JoinRecipients(rs []string) *string {
	rs = SplitRecipients(strings.Join(rs, ","))
	if len(rs) == 0 {
		return nil
	}
	s := strings.Join(rs, ",")
	return &s
}
