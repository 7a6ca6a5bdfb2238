package provider

import "github.com/agentflowhq/agentrt/provider/model"

// Accumulator folds a sequence of model.StreamEvents into a final
// model.Response, so callers that want a blocking-style result can drive a
// stream through the same codepath used for incremental UI updates.
type Accumulator struct {
	msg       model.Message
	textBuf   string
	reasonBuf string
	toolBufs  map[string]*toolBuf
	toolOrder []string
	finish    model.Finish
	usage     model.Usage
	response  *model.Response
}

type toolBuf struct {
	id, name string
	args     string
}

// NewAccumulator returns an empty Accumulator ready to consume events via
// Add.
func NewAccumulator() *Accumulator {
	return &Accumulator{toolBufs: map[string]*toolBuf{}}
}

// Add folds one event into the accumulator. Add is idempotent with respect
// to a finish event already seen: once a finish/error event is folded in,
// subsequent Add calls are no-ops, since a stream yields at most one
// terminal event.
func (a *Accumulator) Add(ev model.StreamEvent) {
	if a.response != nil {
		return
	}
	switch ev.Type {
	case model.EventTextDelta:
		a.textBuf += ev.Delta
	case model.EventReasoningDelta:
		a.reasonBuf += ev.Delta
	case model.EventToolCallStart:
		a.toolBufs[ev.ToolCallID] = &toolBuf{id: ev.ToolCallID, name: ev.ToolCallName}
		a.toolOrder = append(a.toolOrder, ev.ToolCallID)
	case model.EventToolCallDelta:
		if buf, ok := a.toolBufs[ev.ToolCallID]; ok {
			buf.args += ev.Delta
		}
	case model.EventToolCallEnd:
		if ev.ToolCall != nil {
			a.toolBufs[ev.ToolCallID] = &toolBuf{id: ev.ToolCall.ID, name: ev.ToolCall.Name, args: ev.ToolCall.RawArgs}
		}
	case model.EventFinish:
		a.finish = ev.Finish
		a.usage = ev.Usage
		if ev.Response != nil {
			a.response = ev.Response
			return
		}
		a.response = a.build()
	case model.EventError:
		a.response = a.build()
	}
}

// Result returns the accumulated Response. It is only meaningful after a
// finish or error event (or stream exhaustion) has been folded in; callers
// should prefer Drain for the common case of consuming an entire stream.
func (a *Accumulator) Result() *model.Response {
	if a.response != nil {
		return a.response
	}
	return a.build()
}

func (a *Accumulator) build() *model.Response {
	msg := model.Message{Role: model.RoleAssistant}
	if a.reasonBuf != "" {
		msg.Parts = append(msg.Parts, model.ThinkingPart{Text: a.reasonBuf})
	}
	if a.textBuf != "" {
		msg.Parts = append(msg.Parts, model.TextPart{Text: a.textBuf})
	}
	for _, id := range a.toolOrder {
		buf := a.toolBufs[id]
		if buf == nil {
			continue
		}
		msg.Parts = append(msg.Parts, model.ToolCallPart{ID: buf.id, Name: buf.name, RawArgs: buf.args})
	}
	return &model.Response{
		Message: msg,
		Finish:  a.finish,
		Usage:   a.usage,
	}
}

// Drain consumes every event from s, folding each into a fresh Accumulator,
// and returns the resulting Response. It gives streaming and non-streaming
// callers the same Response shape for a given underlying model turn.
func Drain(s model.Streamer) (*model.Response, error) {
	acc := NewAccumulator()
	for {
		ev, ok := s.Next()
		if !ok {
			break
		}
		acc.Add(ev)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return acc.Result(), nil
}
