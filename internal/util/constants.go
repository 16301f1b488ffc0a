package util

// gin 上下文中使用的 key
const (
	ContextUserKey   = "user"
	ContextConfigKey = "config"
)
