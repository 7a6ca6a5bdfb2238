package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentflowhq/agentrt/provider/model"
)

// streamer adapts an Anthropic ssestream.Stream into model.Streamer,
// translating Anthropic's content-block start/delta/stop event sequence
// into the unified text/reasoning/tool_call start/delta/end events.
type streamer struct {
	src       *ssestream.Stream[sdk.MessageStreamEventUnion]
	nameMap   map[string]string
	pending   []model.StreamEvent
	toolBufs  map[int]*strBuf
	blockKind map[int]string
	started   bool
	err       error
}

type strBuf struct {
	id, name string
	data     []byte
}

func newStreamer(src *ssestream.Stream[sdk.MessageStreamEventUnion], nameMap map[string]string) *streamer {
	return &streamer{
		src:       src,
		nameMap:   nameMap,
		toolBufs:  map[int]*strBuf{},
		blockKind: map[int]string{},
	}
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

func (s *streamer) translate(ev sdk.MessageStreamEventUnion) {
	if !s.started {
		s.started = true
		s.emit(model.StreamEvent{Type: model.EventStreamStart})
	}
	switch ev.Type {
	case "content_block_start":
		block := ev.ContentBlock
		idx := int(ev.Index)
		switch block.Type {
		case "text":
			s.blockKind[idx] = "text"
			s.emit(model.StreamEvent{Type: model.EventTextStart})
		case "thinking":
			s.blockKind[idx] = "thinking"
			s.emit(model.StreamEvent{Type: model.EventReasoningStart})
		case "tool_use":
			s.blockKind[idx] = "tool_use"
			name := block.Name
			if canonical, ok := s.nameMap[name]; ok {
				name = canonical
			}
			s.toolBufs[idx] = &strBuf{id: block.ID, name: name}
			s.emit(model.StreamEvent{Type: model.EventToolCallStart, ToolCallID: block.ID, ToolCallName: name})
		}
	case "content_block_delta":
		idx := int(ev.Index)
		delta := ev.Delta
		switch s.blockKind[idx] {
		case "text":
			if delta.Text != "" {
				s.emit(model.StreamEvent{Type: model.EventTextDelta, Delta: delta.Text})
			}
		case "thinking":
			if delta.Thinking != "" {
				s.emit(model.StreamEvent{Type: model.EventReasoningDelta, Delta: delta.Thinking})
			}
		case "tool_use":
			if buf, ok := s.toolBufs[idx]; ok && delta.PartialJSON != "" {
				buf.data = append(buf.data, []byte(delta.PartialJSON)...)
				s.emit(model.StreamEvent{Type: model.EventToolCallDelta, ToolCallID: buf.id, Delta: delta.PartialJSON})
			}
		}
	case "content_block_stop":
		idx := int(ev.Index)
		switch s.blockKind[idx] {
		case "text":
			s.emit(model.StreamEvent{Type: model.EventTextEnd})
		case "thinking":
			s.emit(model.StreamEvent{Type: model.EventReasoningEnd})
		case "tool_use":
			if buf, ok := s.toolBufs[idx]; ok {
				var args any
				_ = json.Unmarshal(buf.data, &args)
				s.emit(model.StreamEvent{
					Type:         model.EventToolCallEnd,
					ToolCallID:   buf.id,
					ToolCallName: buf.name,
					ToolCall:     &model.ToolCallPart{ID: buf.id, Name: buf.name, Args: args, RawArgs: string(buf.data)},
				})
				delete(s.toolBufs, idx)
			}
		}
	case "message_delta":
		if ev.Delta.StopReason != "" {
			finish := translateStopReason(string(ev.Delta.StopReason))
			usage := model.Usage{OutputTokens: int(ev.Usage.OutputTokens)}
			s.emit(model.StreamEvent{Type: model.EventFinish, Finish: finish, Usage: usage})
		}
	case "error":
		s.emit(model.StreamEvent{Type: model.EventError, Err: &sdkStreamError{ev.Error.Message}})
	}
}

type sdkStreamError struct{ msg string }

func (e *sdkStreamError) Error() string { return e.msg }
