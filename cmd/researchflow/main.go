// =============================================================================
// ResearchFlow 命令行入口
// =============================================================================
//
// 使用方法:
//
//	researchflow run "问题"                       # 研究并输出带引用的答案
//	researchflow run --config config.yaml "问题"  # 指定配置文件
//	researchflow graph                            # 输出研究流程的 Mermaid 图
//	researchflow version                          # 显示版本信息
// =============================================================================

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BaSui01/researchflow/config"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitFailure     = 1
	exitConfigError = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		return exitConfigError
	}
	return exitFailure
}
