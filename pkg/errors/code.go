// Package errors 定义 budgetqa 的结构化错误码。
//
// 错误码为 7 位十进制数 AABBCCC：AA 服务，BB 类别，CCC 序号。
// 服务 00 为通用错误，10-19 为基础设施，20-79 为业务服务，90-99 为第三方服务。
// 类别决定错误属于客户端 (01-06) 还是服务端 (07-12)。
package errors

// 服务代码 (AA)
const (
	ServiceCommon        = 0
	ServiceInfraVector   = 13
	ServiceBudgetQA      = 21
	ServiceThirdPartyLLM = 94
)

// 类别代码 (BB)
const (
	CategoryRequest   = 1
	CategoryResource  = 4
	CategoryRateLimit = 6
	CategoryInternal  = 7
	CategoryDatabase  = 8
	CategoryTimeout   = 11
	CategoryConfig    = 12
)

const (
	serviceUnit  = 100000
	categoryUnit = 1000
)

// MakeCode 组合服务、类别与序号。
func MakeCode(service, category, sequence int) int {
	return service*serviceUnit + category*categoryUnit + sequence
}

// ParseCode 是 MakeCode 的逆运算。
func ParseCode(code int) (service, category, sequence int) {
	return code / serviceUnit, code % serviceUnit / categoryUnit, code % categoryUnit
}

// IsClientError reports whether code falls into a client-side category.
func IsClientError(code int) bool {
	_, c, _ := ParseCode(code)
	return c >= CategoryRequest && c <= CategoryRateLimit
}

// IsServerError reports whether code falls into a server-side category.
func IsServerError(code int) bool {
	_, c, _ := ParseCode(code)
	return c >= CategoryInternal && c <= CategoryConfig
}
