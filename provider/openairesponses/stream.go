package openairesponses

import (
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/agentflowhq/agentrt/provider/model"
)

// streamer adapts the Responses API's SSE event union into the unified
// text_delta/text_end, reasoning_delta/reasoning_end and tool_call
// start/delta/end events. No text_start or reasoning_start events are
// emitted.
type streamer struct {
	src     *ssestream.Stream[responses.ResponseStreamEventUnion]
	names   map[string]string
	pending []model.StreamEvent
	started bool
	err     error
}

func newStreamer(src *ssestream.Stream[responses.ResponseStreamEventUnion], names map[string]string) *streamer {
	return &streamer{src: src, names: names}
}

func (s *streamer) Next() (model.StreamEvent, bool) {
	for len(s.pending) == 0 {
		if !s.src.Next() {
			s.err = s.src.Err()
			return model.StreamEvent{}, false
		}
		s.translate(s.src.Current())
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

func (s *streamer) Err() error   { return s.err }
func (s *streamer) Close() error { return s.src.Close() }

func (s *streamer) emit(ev model.StreamEvent) { s.pending = append(s.pending, ev) }

func (s *streamer) translate(ev responses.ResponseStreamEventUnion) {
	if !s.started {
		s.started = true
		s.emit(model.StreamEvent{Type: model.EventStreamStart})
	}
	switch ev.Type {
	case "response.output_text.delta":
		s.emit(model.StreamEvent{Type: model.EventTextDelta, Delta: ev.Delta})
	case "response.output_text.done":
		s.emit(model.StreamEvent{Type: model.EventTextEnd})
	case "response.reasoning_summary_text.delta":
		s.emit(model.StreamEvent{Type: model.EventReasoningDelta, Delta: ev.Delta})
	case "response.reasoning_summary_text.done":
		s.emit(model.StreamEvent{Type: model.EventReasoningEnd})
	case "response.function_call_arguments.delta":
		s.emit(model.StreamEvent{Type: model.EventToolCallDelta, ToolCallID: ev.ItemID, Delta: ev.Delta})
	case "response.output_item.added":
		if fn, ok := ev.Item.AsAny().(responses.ResponseFunctionToolCall); ok {
			name := fn.Name
			if canonical, ok := s.names[name]; ok {
				name = canonical
			}
			s.emit(model.StreamEvent{Type: model.EventToolCallStart, ToolCallID: fn.CallID, ToolCallName: name})
		}
	case "response.output_item.done":
		if fn, ok := ev.Item.AsAny().(responses.ResponseFunctionToolCall); ok {
			name := fn.Name
			if canonical, ok := s.names[name]; ok {
				name = canonical
			}
			s.emit(model.StreamEvent{
				Type:         model.EventToolCallEnd,
				ToolCallID:   fn.CallID,
				ToolCallName: name,
				ToolCall:     &model.ToolCallPart{ID: fn.CallID, Name: name, RawArgs: fn.Arguments},
			})
		}
	case "response.completed", "response.incomplete":
		out := ev.Response
		resp, err := translateResponse(&out, s.names)
		if err != nil {
			s.emit(model.StreamEvent{Type: model.EventError, Err: err})
			return
		}
		s.emit(model.StreamEvent{Type: model.EventFinish, Finish: resp.Finish, Usage: resp.Usage, Response: resp})
	case "error":
		s.emit(model.StreamEvent{Type: model.EventError, Err: &streamError{ev.Message}})
	}
}

type streamError struct{ msg string }

func (e *streamError) Error() string { return e.msg }
