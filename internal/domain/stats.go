package domain

// Stats 用户维度的统计计数，会话删除或替换后依然保留。
type Stats struct {
	Created  int64 `json:"created"`  // 累计创建的会话数，只增不减
	Received int   `json:"received"` // 最近一次收件箱检查看到的邮件数（快照，覆盖写）
}
