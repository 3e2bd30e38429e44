package constants

const (
	// AppName 应用名，用于日志与追踪
	AppName = "resume-analyzer"
	// AppVersion 当前版本
	AppVersion = "0.3.0"

	// SessionMarkerFile 会话目录中记录创建时间的标记文件 (RFC3339Nano)
	SessionMarkerFile = ".created"
	// LocalIndexFile 本地向量索引的 SQLite 文件名，位于会话目录内
	LocalIndexFile = "index.db"
	// DefaultCollectionPrefix 会话集合名前缀，集合名为 resume_{sessionID}
	DefaultCollectionPrefix = "resume_"
)
