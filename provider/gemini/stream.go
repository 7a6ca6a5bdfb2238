package gemini

import (
	"context"
	"encoding/json"
	"iter"

	"google.golang.org/genai"

	"github.com/agentflowhq/agentrt/provider/model"
)

// streamer drains a genai GenerateContentStream iterator (iter.Seq2) into
// the unified event sequence. Gemini has no explicit block start/stop
// framing, so text_start is synthesized before the first text and text_end
// once the iterator is exhausted; each function call is emitted at once as
// a tool_call_start immediately followed by its tool_call_end.
type streamer struct {
	ctx      context.Context
	next     func() (*genai.GenerateContentResponse, error, bool)
	stop     func()
	modelID  string
	pending  []model.StreamEvent
	started  bool
	textOpen bool
	err      error
	done     bool
	lastResp *genai.GenerateContentResponse
}

func newStreamer(ctx context.Context, seq iter.Seq2[*genai.GenerateContentResponse, error], modelID string) *streamer {
	next, stop := iter.Pull2(seq)
	return &streamer{ctx: ctx, next: next, stop: stop, modelID: modelID}
}

func (s *streamer) Next() (model.StreamEvent, bool) {
	for len(s.pending) == 0 {
		if s.done {
			return model.StreamEvent{}, false
		}
		select {
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			s.done = true
			return model.StreamEvent{}, false
		default:
		}
		resp, err, ok := s.next()
		if !ok {
			s.finish()
			if len(s.pending) == 0 {
				return model.StreamEvent{}, false
			}
			break
		}
		if err != nil {
			s.err = wrapError(err)
			s.emit(model.StreamEvent{Type: model.EventError, Err: s.err})
			s.done = true
			break
		}
		s.translate(resp)
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

func (s *streamer) Err() error { return s.err }

func (s *streamer) Close() error {
	s.stop()
	return nil
}

func (s *streamer) emit(ev model.StreamEvent) { s.pending = append(s.pending, ev) }

func (s *streamer) translate(resp *genai.GenerateContentResponse) {
	if !s.started {
		s.started = true
		s.emit(model.StreamEvent{Type: model.EventStreamStart})
	}
	s.lastResp = resp
	if resp == nil {
		return
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				if !s.textOpen {
					s.textOpen = true
					s.emit(model.StreamEvent{Type: model.EventTextStart})
				}
				s.emit(model.StreamEvent{Type: model.EventTextDelta, Delta: part.Text})
			}
			if part.FunctionCall != nil {
				raw, _ := json.Marshal(part.FunctionCall.Args)
				id := generateToolCallID(part.FunctionCall.Name)
				s.emit(model.StreamEvent{Type: model.EventToolCallStart, ToolCallID: id, ToolCallName: part.FunctionCall.Name})
				s.emit(model.StreamEvent{
					Type:         model.EventToolCallEnd,
					ToolCallID:   id,
					ToolCallName: part.FunctionCall.Name,
					ToolCall:     &model.ToolCallPart{ID: id, Name: part.FunctionCall.Name, RawArgs: string(raw)},
				})
			}
		}
	}
}

func (s *streamer) finish() {
	s.done = true
	if s.textOpen {
		s.emit(model.StreamEvent{Type: model.EventTextEnd})
		s.textOpen = false
	}
	resp, err := translateResponse(s.lastResp, s.modelID)
	if err != nil {
		s.emit(model.StreamEvent{Type: model.EventFinish, Finish: model.Finish{Reason: model.FinishOther}})
		return
	}
	s.emit(model.StreamEvent{Type: model.EventFinish, Finish: resp.Finish, Usage: resp.Usage, Response: resp})
}
