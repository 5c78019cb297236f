package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/budgetqa/internal/model"
)

// SystemPrompt 问答的固定系统指令。
const SystemPrompt = `You are a helpful AI assistant specializing in India's Budget 2026-2027.
Your role is to explain budget provisions, tax changes, and allocations in clear, accessible language.

Guidelines:
- Provide accurate information based ONLY on the context provided
- Use simple language that anyone can understand
- Include specific numbers, percentages, and figures when available
- If the context doesn't contain the answer, say so clearly
- Cite the source document and page number when possible
- Be concise but thorough

Remember: You are explaining India's budget to citizens who want to understand how it affects them.`

// FallbackAnswer 生成失败时返回给用户的固定答复。
const FallbackAnswer = "I apologize, but I'm currently unable to generate a response. " +
	"This might be due to high demand or a temporary issue. " +
	"Please try again in a moment."

// ContextPrompt 用检索到的分块构建带来源的提示。
func ContextPrompt(question string, chunks []model.RetrievedChunk) string {
	blocks := make([]string, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, fmt.Sprintf("[Source: %s, Page %d]\n%s",
			c.Chunk.DocumentName, c.Chunk.PageNumber, c.Chunk.Text))
	}

	return fmt.Sprintf(`Based on the following excerpts from India's Budget 2026-2027 documents, answer the user's question.

CONTEXT:
%s

USER QUESTION:
%s

ANSWER:
Provide a clear, helpful answer based on the context above. Include specific numbers and cite sources when possible. If the context doesn't fully answer the question, acknowledge that and provide what information is available.`,
		strings.Join(blocks, "\n\n"), question)
}

// NoContextPrompt 没有可用分块时的提示，要求模型说明资料中没有相关内容。
func NoContextPrompt(question string) string {
	return fmt.Sprintf(`The user asked: "%s"

Unfortunately, I don't have specific information about this in the Budget 2026-2027 documents I have access to.

Please acknowledge this politely and suggest:
1. The user may want to check the full budget documents at indiabudget.gov.in
2. Asking a related question that might be covered in the budget
3. Being as helpful as possible with general budget knowledge if appropriate

Be honest about limitations but remain helpful.`, question)
}
