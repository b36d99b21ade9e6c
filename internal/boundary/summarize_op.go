package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentmail-core/agentmail/internal/errs"
	"github.com/agentmail-core/agentmail/internal/summarize"
)

// summarizeThreadRequest mirrors spec §6's summarize_thread input row.
// thread_id accepts either one id or a CSV list of up to MaxThreadIDs.
type summarizeThreadRequest struct {
	ProjectKey      string `json:"project_key"`
	ThreadID        string `json:"thread_id"`
	IncludeExamples bool   `json:"include_examples"`
	LLMMode         string `json:"llm_mode"`
	LLMModel        string `json:"llm_model"`
	PerThreadLimit  int    `json:"per_thread_limit"`
}

// singleThreadResponse is the single-thread output shape named in spec §6.
type singleThreadResponse struct {
	ThreadID string            `json:"thread_id"`
	Summary  summarize.Summary `json:"summary"`
	Examples []string          `json:"examples"`
}

// multiThreadResponse is the multi-thread output shape.
type multiThreadResponse struct {
	Threads   []summarize.Summary `json:"threads"`
	Aggregate summarize.Aggregate `json:"aggregate"`
}

func handleSummarizeThread(ctx context.Context, deps *Deps, params json.RawMessage) (any, *errs.Error) {
	var req summarizeThreadRequest
	if derr := decodeParams(params, &req); derr != nil {
		return nil, derr
	}
	if strings.TrimSpace(req.ThreadID) == "" {
		return nil, errs.InvalidArgument("thread_id is required")
	}

	project, serr := deps.Store.GetOrCreateProject(ctx, req.ProjectKey, req.ProjectKey)
	if serr != nil {
		return nil, asErrsError(serr)
	}

	ids := splitThreadIDs(req.ThreadID)

	systemPrompt, userPrompt := summarizationPrompts(req.LLMMode, req.LLMModel)

	if len(ids) == 1 {
		summary, err := deps.Summarizer.SingleThread(ctx, project.ID, ids[0], systemPrompt, userPrompt)
		if err != nil {
			return nil, asErrsError(err)
		}
		resp := singleThreadResponse{ThreadID: ids[0], Summary: summary}
		if req.IncludeExamples {
			resp.Examples = examplesFor(summary)
		}
		publishSummaryEvent(deps, project.ID, ids)
		return resp, nil
	}

	summaries, aggregate, err := deps.Summarizer.MultiThread(ctx, project.ID, ids, systemPrompt, userPrompt)
	if err != nil {
		return nil, asErrsError(err)
	}
	publishSummaryEvent(deps, project.ID, ids)
	return multiThreadResponse{Threads: summaries, Aggregate: aggregate}, nil
}

func splitThreadIDs(raw string) []string {
	var ids []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			ids = append(ids, tok)
		}
	}
	return ids
}

// summarizationPrompts builds the model refiner's system/user prompts from
// the requested mode and model override. Both are only written into the
// user prompt: refinement runs whenever a refiner is configured, and the
// baseline extraction always runs.
func summarizationPrompts(mode, model string) (string, string) {
	system := "Summarize the following message thread. Return JSON with key_points, action_items, and mentions."
	user := fmt.Sprintf("llm_mode=%s model=%s", mode, model)
	return system, user
}

// examplesFor pulls a handful of representative key points to surface as
// "examples" when the caller requests them — the baseline extractor has no
// separate example concept, so the key points double as illustrative
// excerpts.
func examplesFor(s summarize.Summary) []string {
	if len(s.KeyPoints) <= 3 {
		return s.KeyPoints
	}
	return s.KeyPoints[:3]
}

func publishSummaryEvent(deps *Deps, projectID int64, threadIDs []string) {
	if deps.Events == nil {
		return
	}
	_, _ = deps.Events.Source("summarize").Publish("summarize_thread", projectID, map[string]any{
		"thread_ids": threadIDs,
	})
}
