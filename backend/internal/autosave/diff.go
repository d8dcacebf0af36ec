package autosave

import (
	"html"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// Snapshot 服务器当前持有的条目状态（冲突渲染与版本比较用）
type Snapshot struct {
	Text       string
	Version    uint64
	ModifiedBy string // 空串 = 匿名条目
	ModifiedAt time.Time
}

// Conflict 版本冲突时返回给前端的内容
// Modal 内所有用户文本已转义，可直接嵌入页面
type Conflict struct {
	Modal         string `json:"modal"`
	ServerVersion uint64 `json:"server_version"`
}

const fallbackEditor = "another user"

// BuildConflict 计算服务器文本(from)与客户端文本(to)的 unified diff（3 行上下文），
// 逐行转义一次并按类别包装；两侧文本相同则渲染"no differences detected"占位。
func BuildConflict(snap Snapshot, clientText string) Conflict {
	editor := snap.ModifiedBy
	if editor == "" {
		editor = fallbackEditor
	}

	var b strings.Builder
	b.WriteString(`<div class="autosave-conflict">`)
	b.WriteString(`<p class="conflict-meta">Last saved by <strong>`)
	b.WriteString(html.EscapeString(editor))
	b.WriteString(`</strong> at `)
	b.WriteString(snap.ModifiedAt.Format("2006-01-02 15:04:05"))
	b.WriteString(`</p>`)
	b.WriteString(renderDiff(snap.Text, clientText))
	b.WriteString(`</div>`)

	return Conflict{Modal: b.String(), ServerVersion: snap.Version}
}

func renderDiff(serverText, clientText string) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(serverText),
		B:        difflib.SplitLines(clientText),
		FromFile: "saved version",
		ToFile:   "your version",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil || text == "" {
		// 两侧完全一致也要给出明确提示，而不是空白 diff
		return `<pre class="autosave-diff"><span class="diff-empty">no differences detected</span></pre>`
	}

	var b strings.Builder
	b.WriteString(`<pre class="autosave-diff">`)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString(`<span class="`)
		b.WriteString(classifyDiffLine(line))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(line))
		b.WriteString("</span>\n")
	}
	b.WriteString(`</pre>`)
	return b.String()
}

// classifyDiffLine 注意顺序：--- / +++ 是文件头，要先于单个 - / + 判断
func classifyDiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		return "diff-header"
	case strings.HasPrefix(line, "@@"):
		return "diff-hunk"
	case strings.HasPrefix(line, "-"):
		return "diff-del"
	case strings.HasPrefix(line, "+"):
		return "diff-add"
	default:
		return "diff-ctx"
	}
}
