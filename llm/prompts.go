package llm

import (
	"fmt"
	"strings"

	"github.com/meeting-copilot/internal/voice"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const systemPromptTemplate = `You are %s, an AI meeting copilot assistant.

Your role is to help users during meetings by:
- Answering questions about the current conversation
- Providing opinions and insights when asked
- Summarizing recent discussion points
- Being concise, professional, and helpful

Guidelines:
- Only respond when explicitly invoked by name
- Keep responses brief and actionable (2-3 sentences max unless asked for more)
- Be polite and professional
- If you don't have enough context, say so
- Don't make up information
- Focus on being helpful, not impressive

Remember: You are a meeting assistant, not a chatbot. Be practical and concise.`

var modePrompts = map[voice.Mode]string{
	voice.ModeAnswer: `Based on the conversation context, provide a direct answer to any question that was asked.
If no question was asked, acknowledge that and offer to help.
Be concise and specific.`,
	voice.ModeOpinion: `Based on the conversation context, provide your professional opinion or insight.
Consider different perspectives and be constructive.
Keep it brief but thoughtful.`,
	voice.ModeSummarize: `Summarize the key points from the recent conversation.
Focus on:
- Main topics discussed
- Important decisions or action items
- Any unresolved questions

Be concise and organized.`,
}

// SystemPrompt returns the copilot persona named after botName.
func SystemPrompt(botName string) string {
	name := strings.TrimSpace(botName)
	if name == "" {
		name = "Watson"
	} else {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return fmt.Sprintf(systemPromptTemplate, name)
}

// ModePrompt returns the task prompt for m; unknown modes use the answer prompt.
func ModePrompt(m voice.Mode) string {
	if p, ok := modePrompts[m]; ok {
		return p
	}
	return modePrompts[voice.ModeAnswer]
}

// BuildMessages assembles the system and user turns for one wake request.
func BuildMessages(botName string, req voice.Request) []Message {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	b.WriteString(req.Context)
	b.WriteString("\n\nTask: ")
	b.WriteString(ModePrompt(req.Mode))
	if instr := strings.TrimSpace(req.Instruction); instr != "" {
		b.WriteString("\n\nAdditional instruction: ")
		b.WriteString(instr)
	}
	return []Message{
		{Role: RoleSystem, Content: SystemPrompt(botName)},
		{Role: RoleUser, Content: b.String()},
	}
}
