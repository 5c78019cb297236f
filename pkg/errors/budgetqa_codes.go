package errors

// budgetqa 服务代码: 21 (业务服务范围 20-79)
// 错误码格式: AABBCCC

var (
	// 文件校验错误 (类别 01)
	ErrInvalidFile      = Register(New(MakeCode(ServiceBudgetQA, CategoryRequest, 1), 400, "Invalid input file", "输入文件无效"))
	ErrUnsupportedFile  = Register(New(MakeCode(ServiceBudgetQA, CategoryRequest, 2), 415, "Unsupported file type", "不支持的文件类型"))
	ErrFileTooLarge     = Register(New(MakeCode(ServiceBudgetQA, CategoryRequest, 3), 413, "File too large", "文件过大"))
	ErrCorruptFile      = Register(New(MakeCode(ServiceBudgetQA, CategoryRequest, 4), 422, "Corrupt or unreadable PDF", "PDF 文件损坏或无法读取"))
	ErrInvalidTaxInput  = Register(New(MakeCode(ServiceBudgetQA, CategoryRequest, 5), 400, "Invalid tax calculation input", "税额计算参数无效"))
	ErrInvalidChatInput = Register(New(MakeCode(ServiceBudgetQA, CategoryRequest, 6), 400, "Invalid chat request", "对话请求无效"))
	ErrFileNotFound     = Register(New(MakeCode(ServiceBudgetQA, CategoryResource, 1), 404, "File not found", "文件不存在"))

	// 处理流程错误 (类别 07)
	ErrExtractionFailed = Register(New(MakeCode(ServiceBudgetQA, CategoryInternal, 1), 500, "PDF extraction failed", "PDF 文本提取失败"))
	ErrRetrievalFailed  = Register(New(MakeCode(ServiceBudgetQA, CategoryInternal, 3), 500, "Retrieval failed", "检索失败"))

	// 配置错误 (类别 12)
	ErrDimensionMismatch = Register(New(MakeCode(ServiceBudgetQA, CategoryConfig, 1), 500, "Embedding dimension mismatch", "向量维度不匹配"))

	// 向量库错误
	ErrVectorStore = Register(New(MakeCode(ServiceInfraVector, CategoryDatabase, 1), 503, "Vector store unavailable", "向量库不可用"))

	// 第三方模型服务错误
	ErrLLMRateLimited = Register(New(MakeCode(ServiceThirdPartyLLM, CategoryRateLimit, 1), 429, "LLM provider rate limited", "模型服务限流"))
)
