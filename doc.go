// Package mcpchat 提供一个浏览器聊天客户端的后端中继：以流式方式转发
// DeepSeek 模型的回复，并在多轮对话中穿插调用外部 MCP 工具服务器
// （含联网搜索工具），把推理文本、正式回答、工具调用进度等结构化事件
// 实时回推给调用方。
//
// 该仓库主要包含三类能力：
//  1. HTTP 中继层：chathttp 包导出 /api/chat（进度流）与 /api/tools（工具清单）handlers
//  2. 编排引擎：engine 包实现多轮「模型调用 + 工具执行」状态机
//  3. SDK：deepseek 包提供可供 Eino 使用的 ToolCallingChatModel 实现，
//     mcptool 包提供 MCP 工具会话客户端与工具清单缓存
package mcpchat
