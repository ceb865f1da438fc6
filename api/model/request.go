package model

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// PaperQueueRequest 论文入队请求
type PaperQueueRequest struct {
	Path    string `json:"path" binding:"required"`     // 论文文件路径
	Title   string `json:"title" binding:"omitempty"`   // 论文标题
	Authors string `json:"authors" binding:"omitempty"` // 作者
	Year    int    `json:"year" binding:"omitempty"`    // 发表年份
}

// PaperIDRequest 按ID操作论文的请求
type PaperIDRequest struct {
	ID string `uri:"id" binding:"required"` // 论文ID
}

// PaperListRequest 论文列表请求
type PaperListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty"` // 论文状态过滤
	RunID  string `form:"run_id" json:"run_id" binding:"omitempty"` // 运行ID过滤
	Title  string `form:"title" json:"title" binding:"omitempty"`   // 标题模糊过滤
}
