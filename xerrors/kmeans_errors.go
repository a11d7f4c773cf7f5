package xerrors

// 聚类核心的三类错误。返回给调用方的都是通过 Derive 派生的新实例，
// 使用 errors.Is(err, ErrConfiguration) 等方式判断类别。
var (
	// ErrConfiguration 聚类参数非法（簇数、容差、迭代次数、降维维度等），在任何计算之前报告。
	ErrConfiguration = New(ErrInvalidArg, 400101, "configuration error", "", nil)
	// ErrDataShape 输入矩阵形状或内容非法（非二维、为空、列数与训练时不一致、整列缺失、非有限值）。
	ErrDataShape = New(ErrUnprocessable, 422101, "data shape error", "", nil)
	// ErrNotFitted 模型尚未训练即调用 Predict。
	ErrNotFitted = New(ErrFailedPrecondition, 409101, "model is not fitted", "call Fit first", nil)
)

// Configuration 创建一个配置错误实例。
func Configuration(format string, args ...any) *Error {
	return ErrConfiguration.Derive(format, args...)
}

// DataShape 创建一个数据形状错误实例。
func DataShape(format string, args ...any) *Error {
	return ErrDataShape.Derive(format, args...)
}

// NotFitted 创建一个未训练错误实例。
func NotFitted() *Error {
	return ErrNotFitted.Derive("call Fit first")
}
