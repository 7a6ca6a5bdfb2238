package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/agentflowhq/agentrt/pipeline"
)

// FanIn parses the parallel.results context key a Parallel node produced
// and ranks candidates by (outcome rank ascending, score descending, id
// ascending), picking the best as the join's winner.
type FanIn struct{}

// Execute implements Handler.
func (FanIn) Execute(_ context.Context, node *pipeline.Node, pctx *pipeline.Context, _ *pipeline.Graph, _ string) (pipeline.Outcome, error) {
	raw, ok := pctx.Get("parallel.results")
	if !ok {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: "fan_in: no parallel.results in context"}, nil
	}
	s, ok := raw.(string)
	if !ok {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: "fan_in: parallel.results is not a string"}, nil
	}

	var results []BranchResult
	if err := json.Unmarshal([]byte(s), &results); err != nil {
		return pipeline.Outcome{}, fmt.Errorf("pipeline: decode parallel.results: %w", err)
	}
	if len(results) == 0 {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: "fan_in: parallel.results is empty"}, nil
	}

	ranked := make([]BranchResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := pipeline.OutcomeRank(ranked[i].Outcome), pipeline.OutcomeRank(ranked[j].Outcome)
		if ri != rj {
			return ri < rj
		}
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	best := ranked[0]
	if pipeline.OutcomeRank(best.Outcome) == pipeline.OutcomeRank(pipeline.StatusFail) {
		return pipeline.Outcome{Status: pipeline.StatusFail, FailureReason: "fan_in: all branches failed"}, nil
	}

	return pipeline.Outcome{
		Status: pipeline.StatusSuccess,
		ContextUpdates: map[string]any{
			"parallel.fan_in.best_id":      best.ID,
			"parallel.fan_in.best_outcome": string(best.Outcome),
		},
	}, nil
}
