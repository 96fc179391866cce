// Package envelope threads request-scoped intent, priorities and accumulated
// findings through every stage of a design request.
//
// A ContextEnvelope is never mutated after construction. Stages return a Delta
// and the owner folds it in with Merge, which always yields a fresh envelope.
package envelope

import (
	"time"
)

// Source tags how a retrieval result was found
type Source string

const (
	SourceExact   Source = "exact"
	SourceVector  Source = "vector"
	SourceKeyword Source = "keyword"
)

// FoundRegulation is a regulation passage returned by retrieval
type FoundRegulation struct {
	ID        string  `json:"id"`
	Section   string  `json:"section,omitempty"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	Source    Source  `json:"source"`
}

// FoundDesignDoc is a design-knowledge or health-and-safety passage
type FoundDesignDoc struct {
	ID        string  `json:"id"`
	Topic     string  `json:"topic,omitempty"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	Source    Source  `json:"source"`
}

// DesignDecision records a choice made for a circuit and what backed it
type DesignDecision struct {
	Circuit     string   `json:"circuit"`
	Decision    string   `json:"decision"`
	Reason      string   `json:"reason,omitempty"`
	Regulations []string `json:"regulations,omitempty"`
}

// AgentStep is one entry of the audit trail
type AgentStep struct {
	Agent string    `json:"agent"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

// CachedEmbedding is a query embedding kept for the lifetime of one request
type CachedEmbedding struct {
	Query       string    `json:"query"`
	Vector      []float32 `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ContextEnvelope is the per-request context record
type ContextEnvelope struct {
	RequestID    string
	SessionID    string
	CreatedAt    time.Time
	Intent       QueryIntent
	Priority     RAGPriority
	Regulations  []FoundRegulation
	Decisions    []DesignDecision
	Embedding    *CachedEmbedding
	AgentChain   []AgentStep
	RAGCallCount int
	TotalTokens  int
}

// Delta is what a stage contributes to the envelope
type Delta struct {
	Regulations  []FoundRegulation
	Decisions    []DesignDecision
	Embedding    *CachedEmbedding
	AgentChain   []AgentStep
	RAGCallCount int
	TotalTokens  int
}

// New creates the envelope for a request. Priorities come from the fixed
// table keyed by the intent's primary goal.
func New(requestID, sessionID string, intent QueryIntent, now time.Time) *ContextEnvelope {
	return &ContextEnvelope{
		RequestID: requestID,
		SessionID: sessionID,
		CreatedAt: now,
		Intent:    intent,
		Priority:  PriorityFor(intent.PrimaryGoal),
	}
}

// Merge folds delta into existing and returns a new envelope. Regulations are
// deduplicated by ID with the first occurrence keeping its content; the kept
// record takes the highest relevance seen for that ID. Decisions and the agent
// chain are appended verbatim and counters are summed.
func Merge(existing *ContextEnvelope, delta Delta) *ContextEnvelope {
	out := &ContextEnvelope{}
	if existing != nil {
		*out = *existing
	}

	out.Regulations = DedupRegulations(existing.regulations(), delta.Regulations)

	out.Decisions = make([]DesignDecision, 0, len(out.Decisions)+len(delta.Decisions))
	out.Decisions = append(out.Decisions, existing.decisions()...)
	out.Decisions = append(out.Decisions, delta.Decisions...)

	out.AgentChain = make([]AgentStep, 0, len(existing.chain())+len(delta.AgentChain))
	out.AgentChain = append(out.AgentChain, existing.chain()...)
	out.AgentChain = append(out.AgentChain, delta.AgentChain...)

	out.RAGCallCount += delta.RAGCallCount
	out.TotalTokens += delta.TotalTokens

	if delta.Embedding != nil {
		out.Embedding = delta.Embedding
	}
	return out
}

// DedupRegulations concatenates lists and removes repeated IDs, keeping list order
func DedupRegulations(lists ...[]FoundRegulation) []FoundRegulation {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]FoundRegulation, 0, total)
	index := make(map[string]int, total)
	for _, l := range lists {
		for _, r := range l {
			if i, seen := index[r.ID]; seen {
				if r.Relevance > out[i].Relevance {
					out[i].Relevance = r.Relevance
				}
				continue
			}
			index[r.ID] = len(out)
			out = append(out, r)
		}
	}
	return out
}

// CachedEmbeddingFor returns the cached vector when it was generated for the
// identical query text less than ttl before now.
func (e *ContextEnvelope) CachedEmbeddingFor(query string, now time.Time, ttl time.Duration) ([]float32, bool) {
	if e == nil || e.Embedding == nil {
		return nil, false
	}
	if e.Embedding.Query != query || len(e.Embedding.Vector) == 0 {
		return nil, false
	}
	if now.Sub(e.Embedding.GeneratedAt) >= ttl {
		return nil, false
	}
	return e.Embedding.Vector, true
}

// Step builds a single-entry delta that records a stage touching the envelope
func Step(agent, note string, at time.Time) Delta {
	return Delta{AgentChain: []AgentStep{{Agent: agent, Note: note, At: at}}}
}

func (e *ContextEnvelope) regulations() []FoundRegulation {
	if e == nil {
		return nil
	}
	return e.Regulations
}

func (e *ContextEnvelope) decisions() []DesignDecision {
	if e == nil {
		return nil
	}
	return e.Decisions
}

func (e *ContextEnvelope) chain() []AgentStep {
	if e == nil {
		return nil
	}
	return e.AgentChain
}
