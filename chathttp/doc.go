// Package chathttp 提供面向浏览器聊天前端的 HTTP 处理器。
//
// 该包对外只暴露：
// - net/http 形式的 handlers（chat/tools/models）
// - Gin 路由注册方法
//
// DeepSeek 的 API Key 仅通过回调注入（AuthProvider），该包不会直接读取环境变量。
//
// 使用示例：
//
//	// net/http
//	chatH, toolsH, modelsH, _ := chathttp.Handlers(chathttp.Config{
//		AuthProvider: func(ctx context.Context) (string, error) {
//			return apiKey, nil
//		},
//	})
//	mux.HandleFunc("/api/chat", chatH)
//	mux.HandleFunc("/api/tools", toolsH)
//	mux.HandleFunc("/api/models", modelsH)
//
//	// gin
//	_ = chathttp.RegisterGinRoutes(r, chathttp.Config{
//		BasePath:     "/api",
//		AuthProvider: func(ctx context.Context) (string, error) { return apiKey, nil },
//	})
package chathttp
