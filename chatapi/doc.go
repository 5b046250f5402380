// Package chatapi 定义对外的数据结构：
//   - /api/chat 的请求体（messages + options）与 MCP 工具描述
//   - 进度事件（think/time/middle/loading/search/tools）及其按 type 区分的
//     固定 payload，每个 payload 都携带轮次 index
//   - 行对分隔（JSON + "\n\n"）的进度流编码器
//   - 流式开始前失败时返回的结构化错误包
//
// 消费方需容忍未知的事件 type。
package chatapi
