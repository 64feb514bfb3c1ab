package models

// DialogueRequest is the input to one dialogue capability call.
type DialogueRequest struct {
	SessionID    string
	SystemPrompt string
	UserText     string
	History      []ConversationMessage
	Stage        Stage
}

// ExtractedData holds the facts extracted from one user message.
// Empty strings and nil values mean nothing was extracted.
type ExtractedData struct {
	AgentType   string         `json:"agent_type,omitempty"`
	Goals       string         `json:"goals,omitempty"`
	Tone        string         `json:"tone,omitempty"`
	UseTools    *bool          `json:"use_tools,omitempty"`
	ToolDetails map[string]any `json:"tool_details,omitempty"`

	TargetUsers      string `json:"target_users,omitempty"`
	GreetingStyle    string `json:"greeting_style,omitempty"`
	ConversationFlow string `json:"conversation_flow,omitempty"`
	EscalationRules  string `json:"escalation_rules,omitempty"`
	SuccessCriteria  string `json:"success_criteria,omitempty"`
	BrandVoice       string `json:"brand_voice,omitempty"`
	VerbosityLevel   string `json:"verbosity_level,omitempty"`
	AdditionalNotes  string `json:"additional_notes,omitempty"`

	ExampleInteractions []string `json:"example_interactions,omitempty"`
	Constraints         []string `json:"constraints,omitempty"`
	EdgeCases           []string `json:"edge_cases,omitempty"`
}

// ConfidenceScores carries a [0,1] confidence for each gated field.
type ConfidenceScores struct {
	AgentType   float64 `json:"agent_type"`
	Goals       float64 `json:"goals"`
	Tone        float64 `json:"tone"`
	UseTools    float64 `json:"use_tools"`
	ToolDetails float64 `json:"tool_details"`
}

// DialogueResult is the structured reply of the dialogue capability.
type DialogueResult struct {
	NextQuestion          string           `json:"next_question"`
	ExtractedData         ExtractedData    `json:"extracted_data"`
	Confidence            ConfidenceScores `json:"confidence"`
	NeedsClarification    bool             `json:"needs_clarification"`
	ClarificationQuestion string           `json:"clarification_question,omitempty"`
	StageComplete         bool             `json:"stage_complete"`
	Reasoning             string           `json:"reasoning,omitempty"`
}
