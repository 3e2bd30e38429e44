package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// AnalysisModulePrefix 简历分析模块
	AnalysisModulePrefix = "analysis"

	// EntitySession 分析会话实体
	EntitySession = "session"

	// KeyLiveSessions 存活会话登记表 (ZSET)，member 为会话ID，score 为创建时间 (unix 秒)
	// 格式: app:analysis:session:live
	KeyLiveSessions = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntitySession + ":live"
)
