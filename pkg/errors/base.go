package errors

import "net/http"

// 通用错误，服务代码 00。
var (
	ErrInvalidParam   = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1), http.StatusBadRequest, "Invalid parameter", "参数无效"))
	ErrRouteNotFound  = Register(New(MakeCode(ServiceCommon, CategoryResource, 4), http.StatusNotFound, "Route not found", "路由不存在"))
	ErrInternal       = Register(New(MakeCode(ServiceCommon, CategoryInternal, 0), http.StatusInternalServerError, "Internal server error", "服务器内部错误"))
	ErrPanic          = Register(New(MakeCode(ServiceCommon, CategoryInternal, 2), http.StatusInternalServerError, "Internal panic recovered", "服务内部异常"))
	ErrRequestTimeout = Register(New(MakeCode(ServiceCommon, CategoryTimeout, 1), http.StatusRequestTimeout, "Request timeout", "请求超时"))
)
