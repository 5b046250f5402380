package chatapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// StreamEncoder 把进度事件序列化为行对分隔的 JSON 记录（JSON + "\n\n"），
// 写入底层流并在可能时立刻 flush。非并发安全：一次编排运行只有一个写方。
type StreamEncoder struct {
	w       io.Writer
	flusher http.Flusher
	wrote   bool
}

// NewStreamEncoder 创建编码器；若 w 同时实现 http.Flusher 则每条事件后 flush。
func NewStreamEncoder(w io.Writer) *StreamEncoder {
	enc := &StreamEncoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

// Encode 写出一条事件。
func (e *StreamEncoder) Encode(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode progress event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "%s\n\n", data); err != nil {
		return fmt.Errorf("failed to write progress event: %w", err)
	}
	e.wrote = true
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Wrote 报告是否已写出过事件（用于区分「流开始前失败」与「流中失败」）。
func (e *StreamEncoder) Wrote() bool {
	return e.wrote
}
