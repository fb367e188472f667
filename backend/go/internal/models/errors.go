package models

import "errors"

var (
	// ErrDetectionFailure 检测引擎调用失败或返回了无法解析的数据，整个文档聚合中止。
	ErrDetectionFailure = errors.New("detection failure")
	// ErrMissingCredential 未配置文本生成凭证。
	ErrMissingCredential = errors.New("no API key provided for LLM markdown generation")
	// ErrGenerationEndpoint 文本生成端点返回了非成功载荷，或发生了传输层错误。
	ErrGenerationEndpoint = errors.New("generation endpoint error")
	// ErrNotFound 引用的已上传文件不存在。
	ErrNotFound = errors.New("file not found")
	// ErrUnsupportedType 输入文件类型不受支持。
	ErrUnsupportedType = errors.New("unsupported file type")
)
