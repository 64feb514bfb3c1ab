package prompt

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/BTreeMap/AgentBuilder/internal/models"
)

// agentFacts are the inputs shared by every platform template.
type agentFacts struct {
	AgentType string
	Goals     string
	Tone      string
	UseTools  bool
	Tools     []models.ToolSpec
}

func (f agentFacts) hasTools() bool {
	return f.UseTools && len(f.Tools) > 0
}

type platformTemplate func(f agentFacts) string

var platformTemplates = map[models.PromptFormat]platformTemplate{
	models.PromptFormatElevenLabs:      elevenLabsPrompt,
	models.PromptFormatOpenAIAssistant: openAIAssistantPrompt,
	models.PromptFormatOpenAIChat:      openAIChatPrompt,
	models.PromptFormatAnthropic:       anthropicPrompt,
	models.PromptFormatGeneric:         genericPrompt,
}

// elevenLabsPrompt targets voice platforms that favor short conversational prompts.
func elevenLabsPrompt(f agentFacts) string {
	parts := []string{
		fmt.Sprintf("You are a %s %s voice agent designed to %s.", f.Tone, f.AgentType, f.Goals),
		"\nCONVERSATION STYLE:\n" +
			fmt.Sprintf("- Maintain a %s tone throughout all interactions\n", f.Tone) +
			"- Keep responses concise and natural for voice conversation\n" +
			"- Use conversational language, avoid overly formal or robotic speech\n" +
			"- Speak clearly and pause appropriately for user responses\n" +
			"- Confirm understanding before taking actions",
		fmt.Sprintf("\nYOUR PRIMARY GOALS:\n%s\n\nAlways prioritize helping the user achieve their goals efficiently.", f.Goals),
	}
	if f.hasTools() {
		parts = append(parts, "\nAVAILABLE TOOLS:\nYou have access to the following tools to assist users:\n")
		for _, t := range f.Tools {
			parts = append(parts, fmt.Sprintf("- %s: %s", toolName(t, "Unknown Tool"), t.Description))
		}
		parts = append(parts, "\nWhen using tools:\n"+
			"- Clearly explain what you're doing\n"+
			"- Gather all required information before calling tools\n"+
			"- Confirm results with the user")
	}
	parts = append(parts, "\nBEST PRACTICES:\n"+
		"- Ask clarifying questions when needed\n"+
		"- Provide helpful suggestions proactively\n"+
		"- Handle errors gracefully and offer alternatives\n"+
		"- End conversations politely and offer further assistance")
	return strings.Join(parts, "\n")
}

func openAIAssistantPrompt(f agentFacts) string {
	parts := []string{
		fmt.Sprintf("# %s Assistant\n\nYou are an AI assistant specialized in %s. Your primary objective is to %s.\n",
			titleCase(f.AgentType), f.AgentType, f.Goals),
		fmt.Sprintf("## Personality\nCommunicate with a %s demeanor. Be helpful, accurate, and user-focused in all interactions.\n", f.Tone),
		fmt.Sprintf("## Capabilities\nYour main responsibilities include:\n- %s\n", f.Goals) +
			"- Providing accurate and helpful information\n" +
			"- Guiding users through processes step-by-step\n" +
			"- Handling edge cases and errors professionally\n",
	}
	if f.hasTools() {
		parts = append(parts, "## Tools\nYou have access to the following tools:\n")
		for _, t := range f.Tools {
			parts = append(parts, fmt.Sprintf("### %s\n%s\n", toolName(t, "Unknown Tool"), t.Description))
		}
		parts = append(parts, "When using tools:\n"+
			"1. Validate all required parameters before calling\n"+
			"2. Handle tool errors gracefully\n"+
			"3. Explain tool results to the user in simple terms\n")
	}
	parts = append(parts, "## Guidelines\n"+
		"- Always prioritize user satisfaction and goal completion\n"+
		"- Ask for clarification when information is ambiguous\n"+
		"- Provide clear, actionable responses\n"+
		"- Maintain context throughout the conversation\n"+
		"- Be proactive in suggesting next steps")
	return strings.Join(parts, "\n")
}

func openAIChatPrompt(f agentFacts) string {
	parts := []string{
		fmt.Sprintf("You are a %s AI assistant specializing in %s. Your primary function is to %s.", f.Tone, f.AgentType, f.Goals),
		fmt.Sprintf("\nCore Responsibilities:\n• %s\n", f.Goals) +
			"• Providing accurate, helpful information\n" +
			"• Guiding users through processes clearly\n" +
			"• Maintaining a consistent, helpful presence\n",
		fmt.Sprintf("\nCommunication Style:\n• Tone: %s\n", f.Tone) +
			"• Approach: Clear, concise, and actionable\n" +
			"• Format: Structured when appropriate, conversational when natural\n",
	}
	if f.hasTools() {
		parts = append(parts, "\nIntegrated Tools:\n")
		for _, t := range f.Tools {
			parts = append(parts, fmt.Sprintf("• %s: %s", toolName(t, "Unknown Tool"), t.Description))
		}
		parts = append(parts, "\nTool Usage Protocol:\n"+
			"1. Identify when a tool is needed\n"+
			"2. Gather required information from user\n"+
			"3. Execute tool with proper parameters\n"+
			"4. Interpret and communicate results\n")
	}
	parts = append(parts, "\nBest Practices:\n"+
		"• Ask clarifying questions to avoid assumptions\n"+
		"• Break down complex tasks into manageable steps\n"+
		"• Provide examples when helpful\n"+
		"• Acknowledge limitations and offer alternatives when needed\n"+
		"• End interactions with clear next steps or conclusions\n")
	return strings.Join(parts, "\n")
}

func anthropicPrompt(f agentFacts) string {
	parts := []string{
		fmt.Sprintf("You are Claude, configured as a %s %s assistant. Your core mission is to %s.", f.Tone, f.AgentType, f.Goals),
		fmt.Sprintf("\n<competencies>\n- Primary goal: %s\n- Communication style: %s\n", f.Goals, f.Tone) +
			"- Core strength: Understanding user needs and providing actionable assistance\n" +
			"- Special focus: Maintaining context and ensuring user satisfaction\n" +
			"</competencies>",
		"\n<instructions>\n" +
			"When interacting with users:\n" +
			"1. Begin by understanding their specific needs\n" +
			"2. Provide clear, structured responses\n" +
			"3. Use examples when helpful\n" +
			"4. Confirm understanding before proceeding with actions\n" +
			"5. Adapt your communication style to user preferences\n" +
			"</instructions>",
	}
	if f.hasTools() {
		parts = append(parts, "\n<tools>\nYou have access to these tools:\n")
		for _, t := range f.Tools {
			parts = append(parts, fmt.Sprintf("\n<tool name=%q>\n%s\n</tool>", toolName(t, "Unknown"), t.Description))
		}
		parts = append(parts, "\nUse tools thoughtfully and explain your actions to the user.\n</tools>")
	}
	parts = append(parts, "\n<quality_standards>\n"+
		"- Accuracy: Provide correct and up-to-date information\n"+
		"- Clarity: Communicate in clear, understandable language\n"+
		fmt.Sprintf("- Tone: Maintain %s demeanor consistently\n", f.Tone)+
		"- Efficiency: Help users achieve goals with minimal friction\n"+
		"</quality_standards>")
	return strings.Join(parts, "\n")
}

func genericPrompt(f agentFacts) string {
	parts := []string{
		fmt.Sprintf("You are a %s %s assistant. Your purpose is to %s.", f.Tone, f.AgentType, f.Goals),
		fmt.Sprintf("\nKey Characteristics:\n- Tone: %s\n- Focus: %s\n- Approach: Helpful, accurate, and user-centric\n", f.Tone, f.Goals),
		"\nOperational Guidelines:\n" +
			"1. Listen carefully to user needs and respond appropriately\n" +
			"2. Provide clear, concise, and accurate information\n" +
			"3. Ask clarifying questions when necessary\n" +
			"4. Guide users step-by-step through complex processes\n" +
			"5. Handle errors and edge cases gracefully\n",
	}
	if f.hasTools() {
		parts = append(parts, fmt.Sprintf("\nAvailable Tools: %d\nYou have access to specialized tools to assist users:\n", len(f.Tools)))
		for i, t := range f.Tools {
			desc := t.Description
			if desc == "" {
				desc = "No description"
			}
			parts = append(parts, fmt.Sprintf("%d. %s - %s", i+1, toolName(t, fmt.Sprintf("Tool %d", i+1)), desc))
		}
		parts = append(parts, "\nUse these tools when appropriate to better serve the user.")
	}
	parts = append(parts, "\nSuccess Metrics:\n"+
		"- User achieves their goals efficiently\n"+
		"- Communication is clear and helpful\n"+
		"- User feels satisfied with the interaction\n")
	return strings.Join(parts, "\n")
}

func toolName(t models.ToolSpec, fallback string) string {
	if t.Name == "" {
		return fallback
	}
	return t.Name
}

// titleCase upper-cases the first letter of each word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
