// Package cast 提供整数类型之间的显式转换，避免在调用处散落的 gosec G115 告警.
package cast

// Int64ToUint64 按位重新解释，负数会映射到高位区间（用于种子混合）.
func Int64ToUint64(i int64) uint64 { return uint64(i) } //nolint:gosec // 按位解释是预期行为.

// IntToUint64 非负数原样转换，负数返回 0.
func IntToUint64(i int) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}
