package summarize

import (
	"context"

	"github.com/agentmail-core/agentmail/internal/store"
)

// LoadThreadInput fetches a thread's messages from the store and resolves
// each sender's display name, producing the MessageInput slice Baseline
// consumes. An unknown thread id yields an empty slice, not an error, so
// callers can treat it the same way Baseline treats an empty thread (spec
// §4.3's "unknown thread id returns an empty per-thread summary").
func LoadThreadInput(ctx context.Context, st *store.Store, projectID int64, threadID string) ([]MessageInput, error) {
	rows, err := st.ThreadMessages(ctx, projectID, threadID)
	if err != nil {
		return nil, err
	}

	names := map[int64]string{}
	out := make([]MessageInput, 0, len(rows))
	for _, m := range rows {
		name, ok := names[m.SenderID]
		if !ok {
			agent, err := st.GetAgent(ctx, projectID, m.SenderID)
			if err != nil {
				return nil, err
			}
			name = agent.Name
			names[m.SenderID] = name
		}
		out = append(out, MessageInput{
			ID: m.ID, SenderName: name, Subject: m.Subject, BodyMD: m.BodyMD,
			CreatedTS: m.CreatedTS, Importance: m.Importance, AckRequired: m.AckRequired,
		})
	}
	return out, nil
}
