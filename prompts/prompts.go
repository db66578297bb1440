package prompts

import "embed"

// FS 内置提示词，工作目录下的 prompts/ 可覆盖同名文件
//
//go:embed *.md
var FS embed.FS
