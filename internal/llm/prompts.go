package llm

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts/*.txt
var promptFS embed.FS

const (
	PromptContextAsk           = "context_ask"
	PromptTitleDescription     = "title_description"
	PromptIcon                 = "icon"
	PromptSuggestedPrompts     = "suggested_prompts"
	PromptSourceIdentification = "source_identification"
)

// Prompt returns the embedded prompt name. It panics on an unknown name,
// the set is fixed at build time.
func Prompt(name string) string {
	data, err := promptFS.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		panic(fmt.Sprintf("llm: unknown prompt %q", name))
	}
	return strings.TrimSpace(string(data))
}

// IconPrompt fills the icon prompt with the allowed names and the description.
func IconPrompt(iconNames []string, description string) string {
	quoted := make([]string, len(iconNames))
	for i, n := range iconNames {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.NewReplacer(
		"{icons}", "["+strings.Join(quoted, ", ")+"]",
		"{chatbot_description}", description,
	).Replace(Prompt(PromptIcon))
}
