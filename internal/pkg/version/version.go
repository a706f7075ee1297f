package version

import "runtime"

// 构建时通过 -ldflags 注入
var (
	Version   = "0.0.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion 编译器版本
var GoVersion = runtime.Version()

// GetVersion 返回版本号
func GetVersion() string {
	return Version
}
