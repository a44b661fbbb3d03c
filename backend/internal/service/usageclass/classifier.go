// Package usageclass 根据命令文本、环境名等线索判定一次运行使用的
// 工作负载运行时（SAS 或 SLC）。全部为纯函数，无任何副作用。
package usageclass

import (
	"regexp"
	"strings"

	"traceability-explorer/backend/internal/domain/audit"
)

// 两组模式按声明顺序匹配，SAS 整组优先于 SLC，首个命中即定类。
var sasPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsas\b`),
	regexp.MustCompile(`(?i)\bproc\s+\w+`),
	regexp.MustCompile(`(?i)\blibname\b`),
	regexp.MustCompile(`(?i)\bdata\s+\w+[^;]*;`),
}

var slcPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bslc\b`),
	regexp.MustCompile(`(?i)\baltair\b`),
	regexp.MustCompile(`(?i)\bwps\b`),
	regexp.MustCompile(`(?i)\bhubcli\b`),
}

// Classify 根据文本特征判定工作负载类别。空白输入与占位文本一律返回 Unknown。
func Classify(text string) audit.UsageClass {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, audit.UnknownValue) {
		return audit.ClassUnknown
	}
	for _, pattern := range sasPatterns {
		if pattern.MatchString(trimmed) {
			return audit.ClassSAS
		}
	}
	for _, pattern := range slcPatterns {
		if pattern.MatchString(trimmed) {
			return audit.ClassSLC
		}
	}
	return audit.ClassUnknown
}

// Infer 按固定优先级对命令（或运行文件）、环境名、目标名依次分类，
// 返回第一个非 Unknown 的结果；三者都无法判定时返回 Unknown。
func Infer(command, environmentName, targetName string) audit.UsageClass {
	for _, candidate := range []string{command, environmentName, targetName} {
		if class := Classify(candidate); class != audit.ClassUnknown {
			return class
		}
	}
	return audit.ClassUnknown
}
