package models

// Detection 是检测引擎对单个区域的原始输出。
// RawContent 的形状因引擎和区域类型而异，由 layout.DecodeContent 统一解码。
type Detection struct {
	Type       string `json:"type"`        // 引擎给出的类别字符串。
	BBox       BBox   `json:"bbox"`        // 像素坐标 [x1, y1, x2, y2]。
	RawContent any    `json:"raw_content"` // 引擎特定的内容载荷。
}

// TextLine 是 OCR 文本行模式下 Detection.RawContent 的载荷。
type TextLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// PageImage 是栅格化后的一页图像。
type PageImage struct {
	Page int    // 页码，从 1 开始。
	Name string // 文件名或来源标识，仅用于日志。
	Data []byte // 编码后的图像字节（PNG/JPEG/...）。
}

// Artifact 是一次 Markdown 合成请求的产物，不做持久化。
type Artifact struct {
	Markdown   string    `json:"markdown"`
	RawText    string    `json:"raw_text"`
	HTML       string    `json:"html,omitempty"`        // 请求 render=html 时填充。
	LayoutData *Document `json:"layout_data,omitempty"` // direct 入口附带版面数据。
}

// PageMarkdown 是增量模式下逐页产生的结果。
type PageMarkdown struct {
	Page     int    `json:"page"`
	Markdown string `json:"markdown"`
}

// UploadInfo 描述一个已保存的上传文件。
type UploadInfo struct {
	Filename     string `json:"filename"`                // 存储用的唯一文件名。
	Path         string `json:"path"`                    // 对外暴露的相对路径，例如 "/uploads/<name>"。
	OriginalName string `json:"original_name,omitempty"` // 上传时的原始文件名。
	ContentType  string `json:"content_type,omitempty"`  // 探测得到的 MIME 类型。
	Size         int64  `json:"size,omitempty"`          // 字节数。
	UploadedAt   int64  `json:"uploaded_at,omitempty"`   // Unix 秒。
}

// ConversionEvent 是每次合成请求完成后发布到 Kafka 的事件。
type ConversionEvent struct {
	RequestID  string `json:"request_id"`
	Source     string `json:"source"`
	Mode       string `json:"mode"`
	Pages      int    `json:"pages"`
	Degraded   bool   `json:"degraded"` // 无凭证回退或诊断文本替代时为 true。
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}
