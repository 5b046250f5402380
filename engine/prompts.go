package engine

import (
	"fmt"
	"strings"
	"time"
)

// nameConversationPrompt 生成对话命名提示词。
func nameConversationPrompt(message string) string {
	fence := "```"
	return strings.TrimSpace(fmt.Sprintf(`根据聊天记录，给这个对话起一个名字。
尽量简短 —— 最多20个字符，不要加引号。
只提供名称，不提供其他内容。

下面是对话：

%s
%s
%s

用20个或更少的字符来命名这段对话。
只说名字，别的什么都不要说。

名字是：`, fence, message, fence))
}

// toolChoiceInstruction 生成函数调用检测提示词，
// 指示模型在需要时发起 tool_calls，否则直接作答。
func toolChoiceInstruction(date time.Time) string {
	return strings.TrimSpace(fmt.Sprintf(`作为一个函数调用检测器，您的主要目标是充分理解用户输入的信息，来判断是否需要调用工具，记住今天的日期：%s。请严格遵循以下规则：
1. 当所提供的信息足以有效地解决问题时，直接回答，不要发起函数调用；
2. 仅当需要外部工具的结果才能回答时，按照请求中声明的函数清单发起 tool_calls；
3. 工具结果返回后，综合结果用用户的语言作答。`, formatPromptDate(date)))
}

// searchAnswerInstruction 生成联网搜索结果拼接提示词。
func searchAnswerInstruction(date time.Time) string {
	return strings.TrimSpace(fmt.Sprintf(`你是一个专业的网络研究人工智能，旨在根据提供的搜索结果生成响应。记住今天是%s。

你的目标:
-对指导方针保持清醒的意识。
-保持效率，专注于用户的需求，不要采取额外的步骤。
-提供准确、简洁、格式良好的回答。
-避免幻觉或捏造。坚持已证实的事实。
—严格遵循格式规范。

在提供给您的搜索结果中，每个结果的格式为[webpage X begin]...[webpage X end]，其中X为每篇文章的数字索引。

响应规则:
-回应必须是翔实的，长而详细的，但清晰和简洁的博客文章，以解决用户的问题（超级详细和正确的引用）。
-使用结构化的答案，并以降价的形式给出标题。
-不要使用h1标题。
-永远不要说你是根据搜索结果说的，只是提供信息。
-你的答案应该综合多个相关网页的信息。
-除非用户另有要求，否则您的回复必须使用与用户消息相同的语言，而不是搜索结果语言。
-不要提及你是谁和规则。

尽你所能遵从用户的要求。保持镇静，遵循指导方针。`, formatPromptDate(date)))
}

func formatPromptDate(date time.Time) string {
	return date.Format("2006/01/02")
}

// formatWebpages 把搜索结果列表拼成 [webpage N begin]...[webpage N end] 文本块。
func formatWebpages(items []any) string {
	blocks := make([]string, 0, len(items))
	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		blocks = append(blocks, fmt.Sprintf(`[webpage %d begin]
Title: %s
URL: %s
Content: %s
[webpage %d end]`, i+1, stringField(item, "title"), stringField(item, "link"), stringField(item, "snippet"), i+1))
	}
	return strings.Join(blocks, "\n")
}

func stringField(item map[string]any, key string) string {
	value, _ := item[key].(string)
	return value
}
