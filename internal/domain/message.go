package domain

import "time"

// Message 表示邮件服务商收件箱列表中的一封邮件摘要。
type Message struct {
	ID             string        `json:"id"`
	From           string        `json:"from,omitempty"`
	Subject        string        `json:"subject"`
	Intro          string        `json:"intro,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	Seen           bool          `json:"seen"`
	HasAttachments bool          `json:"hasAttachments"`
	Attachments    []*Attachment `json:"attachments,omitempty"`
}
