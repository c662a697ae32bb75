package room

import (
	"strconv"
	"strings"
)

// Prompt 结构化提示，线上格式为 key:src:dest:arg:arg2
type Prompt struct {
	Key  string `json:"key"`
	Src  int    `json:"src,omitempty"`
	Dest int    `json:"dest,omitempty"`
	Arg  string `json:"arg,omitempty"`
	Arg2 string `json:"arg2,omitempty"`
}

// ParsePrompt 解析线上提示串，无法解析的数字按0处理
func ParsePrompt(s string) Prompt {
	parts := strings.Split(s, ":")
	p := Prompt{Key: parts[0]}
	if len(parts) > 1 {
		p.Src, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		p.Dest, _ = strconv.Atoi(parts[2])
	}
	if len(parts) > 3 {
		p.Arg = parts[3]
	}
	if len(parts) > 4 {
		p.Arg2 = parts[4]
	}
	return p
}

// DefaultPrompt 服务器未给出提示时使用的默认提示
func DefaultPrompt(key, arg string) Prompt {
	return Prompt{Key: key, Arg: arg}
}

// PromptOr 服务器提示为空时回退到默认提示
func PromptOr(wire, key, arg string) Prompt {
	if wire == "" {
		return DefaultPrompt(key, arg)
	}
	return ParsePrompt(wire)
}

// String 渲染为未翻译的文本，%src/%dest/%arg/%arg2 由界面层替换
func (p Prompt) String() string {
	if p.Key == "" {
		return ""
	}
	parts := []string{p.Key, strconv.Itoa(p.Src), strconv.Itoa(p.Dest), p.Arg, p.Arg2}
	// 去掉末尾的空字段
	n := len(parts)
	for n > 1 && (parts[n-1] == "" || parts[n-1] == "0") {
		n--
	}
	return strings.Join(parts[:n], ":")
}
