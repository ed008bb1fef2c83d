package model

import "time"

// TopicID identifies a configured generation behavior. The set of known
// topics is a typed table rather than string-keyed dispatch; unknown or
// inactive topics remain a runtime lookup failure because the registry is
// configuration data.
type TopicID string

const (
	TopicNicheReview    TopicID = "niche_review"
	TopicOfferAudit     TopicID = "offer_audit"
	TopicNicheDiscovery TopicID = "niche_discovery"
	TopicOfferDesign    TopicID = "offer_design"
)

type TopicKind string

const (
	TopicKindSingleShot     TopicKind = "single_shot"
	TopicKindConversational TopicKind = "conversational"
)

// TopicConfig is the static descriptor for one topic.
type TopicConfig struct {
	ID               TopicID
	Active           bool
	Kind             TopicKind
	RequiredParams   []string
	ResponseContract string
	EstimatedMs      int64

	// Single-shot topics only.
	PromptTemplate string

	// Conversational topics only.
	SystemPromptTemplate string
	MaxTurns             int
	MemoryTokenBudget    int
	IdleTimeout          time.Duration
}

// DefaultEstimatedMs is used when a topic carries no estimate of its own.
const DefaultEstimatedMs = 15000

var topics = map[TopicID]TopicConfig{
	TopicNicheReview: {
		ID:               TopicNicheReview,
		Active:           true,
		Kind:             TopicKindSingleShot,
		RequiredParams:   []string{"current_value"},
		ResponseContract: "niche_review_result",
		EstimatedMs:      12000,
		PromptTemplate: "Review the following business niche statement and assess how specific," +
			" valuable and reachable the described audience is.\n\nNiche statement: {{.current_value}}",
	},
	TopicOfferAudit: {
		ID:               TopicOfferAudit,
		Active:           true,
		Kind:             TopicKindSingleShot,
		RequiredParams:   []string{"offer_description", "target_audience"},
		ResponseContract: "offer_audit_result",
		EstimatedMs:      18000,
		PromptTemplate: "Audit this offer for clarity, pricing logic and fit with its audience." +
			"\n\nOffer: {{.offer_description}}\nTarget audience: {{.target_audience}}",
	},
	TopicNicheDiscovery: {
		ID:               TopicNicheDiscovery,
		Active:           true,
		Kind:             TopicKindConversational,
		ResponseContract: "niche_statement",
		EstimatedMs:      10000,
		SystemPromptTemplate: "You are a business coach guiding the user toward a sharp niche statement." +
			" Ask one focused question per turn. The user has {{.TurnsLeft}} turns left.",
		MaxTurns:          20,
		MemoryTokenBudget: 3000,
		IdleTimeout:       30 * time.Minute,
	},
	TopicOfferDesign: {
		ID:               TopicOfferDesign,
		Active:           true,
		Kind:             TopicKindConversational,
		ResponseContract: "offer_blueprint",
		EstimatedMs:      10000,
		SystemPromptTemplate: "You are a business coach co-designing a concrete offer with the user." +
			" Keep each reply focused on one decision. The user has {{.TurnsLeft}} turns left.",
		MaxTurns:          25,
		MemoryTokenBudget: 3000,
		IdleTimeout:       30 * time.Minute,
	},
}

// LookupTopic returns the configuration for a known topic id.
// The boolean is false for unknown ids; callers decide whether an inactive
// topic is acceptable for their operation.
func LookupTopic(id TopicID) (TopicConfig, bool) {
	t, ok := topics[id]
	return t, ok
}

// EstimateFor returns the per-topic duration estimate, falling back to the
// default when the topic is unknown or carries none.
func EstimateFor(id TopicID) int64 {
	if t, ok := topics[id]; ok && t.EstimatedMs > 0 {
		return t.EstimatedMs
	}
	return DefaultEstimatedMs
}

// AllTopics returns the registry in no particular order.
func AllTopics() []TopicConfig {
	out := make([]TopicConfig, 0, len(topics))
	for _, t := range topics {
		out = append(out, t)
	}
	return out
}
