// Package summarize implements the deterministic thread summariser (spec
// §4.3): a heuristic extractor over a thread's messages, optionally refined
// by an external model call whose failure never corrupts the baseline.
package summarize

// MessageInput is the shape the summariser reads per message;
// LoadThreadInput (loader.go) fetches a thread's messages from
// internal/store and converts them to it.
type MessageInput struct {
	ID         int64
	SenderName string
	Subject    string
	BodyMD     string
	CreatedTS  int64
	Importance string
	AckRequired bool
}

// Mention is a counted @-handle.
type Mention struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ActionItem is one open or done checkbox/keyword line.
type ActionItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Summary is the deterministic (plus optionally model-refined) extraction
// over a single thread.
type Summary struct {
	ThreadID       string       `json:"thread_id"`
	TotalMessages  int          `json:"total_messages"`
	Participants   []string     `json:"participants"`
	Mentions       []Mention    `json:"mentions"`
	KeyPoints      []string     `json:"key_points"`
	ActionItems    []ActionItem `json:"action_items"`
	OpenCount      int          `json:"open_count"`
	DoneCount      int          `json:"done_count"`
	CodeReferences []string     `json:"code_references,omitempty"`
	ModelRefined   bool         `json:"model_refined"`
}

// Aggregate is the cross-thread rollup for a multi-thread request.
type Aggregate struct {
	TopMentions []Mention    `json:"top_mentions"`
	KeyPoints   []string     `json:"key_points"`
	ActionItems []ActionItem `json:"action_items"`
}

const (
	maxMentions    = 10
	maxKeyPoints   = 10
	maxActionItems = 10
	maxCodeRefs    = 10

	aggregateMentionCap = 10
	aggregateKeyCap     = 25
	aggregateActionCap  = 25

	// MaxThreadIDs is the hard cap on thread ids accepted in one
	// summarize_thread call (spec §8 scenario 5).
	MaxThreadIDs = 128
)
