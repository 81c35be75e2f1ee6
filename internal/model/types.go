package model

import (
	"fmt"
	"time"
)

const (
	CanvasWidth  = 1280 // logical slide width
	CanvasHeight = 720  // logical slide height
	MaxSlides    = 12   // hard cap on outline length
	MinSlides    = 4    // cover + toc + one body + closing
)

// Role 幻灯片在大纲中的角色
type Role string

const (
	RoleCover   Role = "cover"
	RoleTOC     Role = "table-of-contents"
	RoleBody    Role = "body"
	RoleClosing Role = "closing"
)

// Request 一次流水线运行的输入，运行开始后不可修改
type Request struct {
	Task       string   `json:"task"`                 // 主题/任务描述
	SlideCount int      `json:"slide_count"`          // 期望幻灯片数量
	Files      []string `json:"files,omitempty"`      // 上传文件路径，有序
	SourceURL  string   `json:"source_url,omitempty"` // 可选来源网页
}

// Visual 研究阶段得到的图片引用
type Visual struct {
	Caption string `json:"caption"`
	URL     string `json:"url"`
}

// SourceMaterial 内容提供者的输出
type SourceMaterial struct {
	Digest  string   `json:"digest"`
	Visuals []Visual `json:"visuals,omitempty"`
	Origin  string   `json:"origin"` // files | research
}

// SlideSpec 大纲中的一张幻灯片
type SlideSpec struct {
	Index   int      `json:"index"` // 1-based
	Role    Role     `json:"role"`
	Title   string   `json:"title"`
	Bullets []string `json:"bullets,omitempty"`
	Visual  string   `json:"visual,omitempty"` // 图片URL，可选
}

// Outline 有序的幻灯片列表
type Outline struct {
	Topic  string      `json:"topic"`
	Slides []SlideSpec `json:"slides"`
}

// Len returns the number of slides in the outline.
func (o *Outline) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Slides)
}

// Validate checks the structural invariants every outline must hold.
func (o *Outline) Validate() error {
	n := o.Len()
	if n < MinSlides {
		return fmt.Errorf("outline has %d slides, need at least %d", n, MinSlides)
	}
	if n > MaxSlides {
		return fmt.Errorf("outline has %d slides, cap is %d", n, MaxSlides)
	}
	for i, s := range o.Slides {
		if s.Index != i+1 {
			return fmt.Errorf("slide at position %d has index %d", i+1, s.Index)
		}
		var want Role
		switch {
		case i == 0:
			want = RoleCover
		case i == 1:
			want = RoleTOC
		case i == n-1:
			want = RoleClosing
		default:
			want = RoleBody
		}
		if s.Role != want {
			return fmt.Errorf("slide %d has role %q, want %q", s.Index, s.Role, want)
		}
	}
	return nil
}

// RenderedSlide 一张渲染完成的幻灯片HTML文档
type RenderedSlide struct {
	Index int    `json:"index"`
	HTML  string `json:"-"`
	Path  string `json:"path,omitempty"` // 持久化后的文件路径
}

// Status 运行结果状态
type Status string

const (
	StatusComplete Status = "complete" // 完整幻灯片 + PDF
	StatusPartial  Status = "partial"  // 有幻灯片缺失或导出失败
	StatusFailed   Status = "failed"   // 致命阶段失败
)

// Result 一次运行的最终结果
type Result struct {
	RunID        string          `json:"run_id"`
	Task         string          `json:"task"`
	Status       Status          `json:"status"`
	FatalStage   string          `json:"fatal_stage,omitempty"`
	Error        string          `json:"error,omitempty"`
	Outline      *Outline        `json:"outline,omitempty"`
	Slides       []RenderedSlide `json:"slides,omitempty"`
	Skipped      []int           `json:"skipped,omitempty"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
	ExportError  string          `json:"export_error,omitempty"`
	PublishedURL string          `json:"published_url,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// SlideIndices returns the indices of the rendered slides in order.
func (r *Result) SlideIndices() []int {
	out := make([]int, 0, len(r.Slides))
	for _, s := range r.Slides {
		out = append(out, s.Index)
	}
	return out
}
