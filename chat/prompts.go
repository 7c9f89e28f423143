package chat

import (
	"fmt"
	"strings"

	"civil-law-rag/retrieval"
)

// noContextAnswer is returned verbatim when retrieval finds nothing; the
// model is not consulted in that case.
const noContextAnswer = "未找到相关法律条文。"

func systemPrompt() string {
	return "你是一位专业的民法典法律助手。请严格依据提供的法律条文回答问题，引用条文时注明条号（如【第一百条】）。如果提供的条文不足以回答问题，请明确说明\"文档中未提及\"，不要编造法律内容。回答应当准确、简洁、条理清晰。"
}

// buildContext renders retrieved chunks as numbered blocks. An article chunk
// is headed by its article number; other chunks by their chapter path.
func buildContext(results []retrieval.Result) string {
	var sb strings.Builder
	for i, r := range results {
		header := articleHeader(r)
		if header != "" {
			sb.WriteString(fmt.Sprintf("%d. 【%s】\n", i+1, header))
		} else {
			sb.WriteString(fmt.Sprintf("%d.\n", i+1))
		}
		sb.WriteString(strings.TrimSpace(r.Text))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func articleHeader(r retrieval.Result) string {
	if article, ok := r.Metadata["article_number"].(string); ok && article != "" {
		return article
	}
	if path, ok := r.Metadata["full_path"].(string); ok && path != "" {
		return path
	}
	return ""
}

func formatUserPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("相关法律条文：\n")
	sb.WriteString(context)
	sb.WriteString("\n\n问题：")
	sb.WriteString(question)
	sb.WriteString("\n\n请依据上述条文作答。")
	return sb.String()
}
