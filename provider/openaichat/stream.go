package openaichat

import (
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentflowhq/agentrt/provider/model"
)

// streamer adapts a Chat Completions SSE stream into the unified
// text_delta/tool_call_delta/finish event sequence. The Chat Completions
// wire format has no explicit block-start/stop framing, so text_start and
// tool_call_start are synthesized the first time content of that kind
// appears for a given index.
type streamer struct {
	src         *openai.ChatCompletionStream
	names       map[string]string
	pending     []model.StreamEvent
	started     bool
	textOpen    bool
	toolStarted map[int]bool
	toolIDs     map[int]string
	toolNames   map[int]string
	toolArgs    map[int]string
	err         error
}

func newStreamer(src *openai.ChatCompletionStream, names map[string]string) *streamer {
	return &streamer{
		src:         src,
		names:       names,
		toolStarted: map[int]bool{},
		toolIDs:     map[int]string{},
		toolNames:   map[int]string{},
		toolArgs:    map[int]string{},
	}
}

func (s *streamer) Next() (model.StreamEvent, bool) {
	for len(s.pending) == 0 {
		chunk, err := s.src.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = wrapError(err)
			}
			s.flushToolCalls()
			if len(s.pending) == 0 {
				return model.StreamEvent{}, false
			}
			break
		}
		s.translate(chunk)
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

func (s *streamer) Err() error   { return s.err }
func (s *streamer) Close() error { return s.src.Close() }

func (s *streamer) emit(ev model.StreamEvent) { s.pending = append(s.pending, ev) }

func (s *streamer) translate(chunk openai.ChatCompletionStreamResponse) {
	if !s.started {
		s.started = true
		s.emit(model.StreamEvent{Type: model.EventStreamStart})
	}
	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.Content != "" {
		if !s.textOpen {
			s.textOpen = true
			s.emit(model.StreamEvent{Type: model.EventTextStart})
		}
		s.emit(model.StreamEvent{Type: model.EventTextDelta, Delta: delta.Content})
	}
	for _, tc := range delta.ToolCalls {
		idx := 0
		if tc.Index != nil {
			idx = *tc.Index
		}
		if !s.toolStarted[idx] {
			s.toolStarted[idx] = true
			name := tc.Function.Name
			if canonical, ok := s.names[name]; ok {
				name = canonical
			}
			s.toolIDs[idx] = tc.ID
			s.toolNames[idx] = name
			s.emit(model.StreamEvent{Type: model.EventToolCallStart, ToolCallID: tc.ID, ToolCallName: name})
		}
		if tc.Function.Arguments != "" {
			s.toolArgs[idx] += tc.Function.Arguments
			s.emit(model.StreamEvent{Type: model.EventToolCallDelta, ToolCallID: s.toolIDs[idx], Delta: tc.Function.Arguments})
		}
	}
	if choice.FinishReason != "" {
		if s.textOpen {
			s.emit(model.StreamEvent{Type: model.EventTextEnd})
			s.textOpen = false
		}
		s.flushToolCalls()
		s.emit(model.StreamEvent{Type: model.EventFinish, Finish: translateFinish(string(choice.FinishReason))})
	}
}

func (s *streamer) flushToolCalls() {
	for idx := range s.toolIDs {
		s.emit(model.StreamEvent{
			Type:         model.EventToolCallEnd,
			ToolCallID:   s.toolIDs[idx],
			ToolCallName: s.toolNames[idx],
			ToolCall:     &model.ToolCallPart{ID: s.toolIDs[idx], Name: s.toolNames[idx], RawArgs: s.toolArgs[idx]},
		})
	}
	s.toolIDs = map[int]string{}
	s.toolNames = map[int]string{}
	s.toolArgs = map[int]string{}
	s.toolStarted = map[int]bool{}
}
