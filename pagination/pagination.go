// Package pagination 解析 skip/limit 分页参数。
package pagination

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page 查询参数，skip 为跳过的记录数。
type Page struct {
	Skip  int `json:"skip"  form:"skip"`
	Limit int `json:"limit" form:"limit"`
}

// Normalize 负数 skip 归零，limit 缺省为 10，上限 100。
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}
