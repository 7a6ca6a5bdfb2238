package anthropic

import (
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflowhq/agentrt/provider/model"
)

// fixedDecoder feeds a fixed sequence of events to an ssestream.Stream.
type fixedDecoder struct {
	events []ssestream.Event
	i      int
}

func (d *fixedDecoder) Event() ssestream.Event { return d.events[d.i-1] }
func (d *fixedDecoder) Next() bool {
	if d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}
func (d *fixedDecoder) Close() error { return nil }
func (d *fixedDecoder) Err() error   { return nil }

func mustUnmarshalEvent(t *testing.T, raw string) sdk.MessageStreamEventUnion {
	t.Helper()
	var ev sdk.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// TestStreamerTextAndToolCall pins scenario 6 (SSE boundary): a stream that
// interleaves a text delta with a tool_use block split across start/delta/
// stop events must translate into the unified text_delta / tool_call_start
// / tool_call_delta / tool_call_end sequence, restoring the tool's
// canonical (pre-sanitization) name.
func TestStreamerTextAndToolCall(t *testing.T) {
	t.Parallel()

	textStart := mustUnmarshalEvent(t, `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)
	textDelta := mustUnmarshalEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello"}}`)
	toolStart := mustUnmarshalEvent(t, `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"t1","name":"tool_a"}}`)
	toolDelta := mustUnmarshalEvent(t, `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"x\":1}"}}`)
	toolStop := mustUnmarshalEvent(t, `{"type":"content_block_stop","index":1}`)
	msgDelta := mustUnmarshalEvent(t, `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":3}}`)

	events := []ssestream.Event{
		{Type: "content_block_start", Data: mustMarshal(t, textStart)},
		{Type: "content_block_delta", Data: mustMarshal(t, textDelta)},
		{Type: "content_block_start", Data: mustMarshal(t, toolStart)},
		{Type: "content_block_delta", Data: mustMarshal(t, toolDelta)},
		{Type: "content_block_stop", Data: mustMarshal(t, toolStop)},
		{Type: "message_delta", Data: mustMarshal(t, msgDelta)},
	}

	dec := &fixedDecoder{events: events}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)
	nameMap := map[string]string{"tool_a": "toolset.tool"}

	s := newStreamer(stream, nameMap)

	var got []model.StreamEvent
	for {
		ev, ok := s.Next()
		if !ok {
			break
		}
		got = append(got, ev)
	}
	require.NoError(t, s.Err())

	var sawTextDelta, sawToolStart, sawToolEnd, sawFinish bool
	for _, ev := range got {
		switch ev.Type {
		case model.EventTextDelta:
			sawTextDelta = true
			assert.Equal(t, "hello", ev.Delta)
		case model.EventToolCallStart:
			sawToolStart = true
			assert.Equal(t, "toolset.tool", ev.ToolCallName, "canonical name must be restored from the sanitized wire name")
		case model.EventToolCallEnd:
			sawToolEnd = true
			require.NotNil(t, ev.ToolCall)
			assert.Equal(t, "toolset.tool", ev.ToolCall.Name)
			assert.Equal(t, `{"x":1}`, ev.ToolCall.RawArgs)
		case model.EventFinish:
			sawFinish = true
			assert.Equal(t, model.FinishToolCalls, ev.Finish.Reason)
		}
	}
	assert.True(t, sawTextDelta, "expected a text delta event")
	assert.True(t, sawToolStart, "expected a tool_call_start event")
	assert.True(t, sawToolEnd, "expected a tool_call_end event")
	assert.True(t, sawFinish, "expected a finish event")
}

func TestStreamerEmitsStreamStartOnce(t *testing.T) {
	t.Parallel()

	ev := mustUnmarshalEvent(t, `{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`)
	delta := mustUnmarshalEvent(t, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`)
	events := []ssestream.Event{
		{Type: "content_block_start", Data: mustMarshal(t, ev)},
		{Type: "content_block_delta", Data: mustMarshal(t, delta)},
	}

	dec := &fixedDecoder{events: events}
	stream := ssestream.NewStream[sdk.MessageStreamEventUnion](dec, nil)
	s := newStreamer(stream, nil)

	first, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, model.EventStreamStart, first.Type)

	for {
		next, ok := s.Next()
		if !ok {
			break
		}
		assert.NotEqual(t, model.EventStreamStart, next.Type)
	}
}
