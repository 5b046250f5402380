package chatapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamEncoder_LinePairDelimited(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamEncoder(&buf)
	require.False(t, enc.Wrote())

	require.NoError(t, enc.Encode(ThinkEvent(0, "推理中")))
	require.NoError(t, enc.Encode(MiddleEvent(0, "你好")))
	require.True(t, enc.Wrote())

	records := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, records, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(records[0]), &first))
	require.Equal(t, "think", first["type"])
	content := first["content"].(map[string]any)
	require.Equal(t, float64(0), content["index"])
	require.Equal(t, "推理中", content["content"])
}

func TestTimeEvent_Payload(t *testing.T) {
	data, err := json.Marshal(TimeEvent(2, 7))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"time","content":{"index":2,"content":7}}`, string(data))
}

func TestToolsEvent_AccumulatedOrder(t *testing.T) {
	activities := []ToolActivity{
		{Type: "end", ToolName: "amap(geocode)", Result: "ok"},
		{Type: "start", ToolName: "amap(weather)"},
	}
	data, err := json.Marshal(ToolsEvent(1, activities))
	require.NoError(t, err)

	var decoded struct {
		Type    string `json:"type"`
		Content struct {
			Index   int            `json:"index"`
			Content []ToolActivity `json:"content"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "tools", decoded.Type)
	require.Equal(t, 1, decoded.Content.Index)
	require.Len(t, decoded.Content.Content, 2)
	require.Equal(t, "end", decoded.Content.Content[0].Type)
	require.Equal(t, "start", decoded.Content.Content[1].Type)
}

func TestSearchEvent_StartHasNoResult(t *testing.T) {
	data, err := json.Marshal(SearchEvent(0, ToolActivity{Type: "start", ToolName: "bing(search)"}))
	require.NoError(t, err)
	require.NotContains(t, string(data), "result")
	require.NotContains(t, string(data), "params")
}

func TestNewErrorEnvelope(t *testing.T) {
	env := NewErrorEnvelope("API_ERROR", "boom")
	require.False(t, env.Success)
	require.Equal(t, "API_ERROR", env.Error.Code)
	require.Equal(t, "boom", env.Error.Message)
	require.NotEmpty(t, env.Error.Timestamp)
}
