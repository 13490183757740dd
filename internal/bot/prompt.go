package bot

import (
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"artorias-backend/internal/store"
)

// PromptSpec holds the persona instruction, the static acknowledgement that
// seeds the dialogue, and generation style knobs. Loaded from a YAML file so
// prompt tuning does not require a rebuild.
type PromptSpec struct {
	System          string `yaml:"system"`
	Acknowledgement string `yaml:"acknowledgement"`
	Style           struct {
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"style"`
}

func LoadPromptSpec(path string) (PromptSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PromptSpec{}, err
	}
	var spec PromptSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return PromptSpec{}, err
	}
	if spec.System == "" {
		return PromptSpec{}, fmt.Errorf("prompt spec %s: system instruction is empty", path)
	}
	if spec.Acknowledgement == "" {
		spec.Acknowledgement = "Entendido! Estou pronto para ajudar."
	}
	return spec, nil
}

// SeedTurns returns the instruction/acknowledgement pair persisted as the
// first two turns of a new transcript. The instruction is never re-prepended
// on later requests; replaying the stored turns carries it.
func (p PromptSpec) SeedTurns() []store.Turn {
	return []store.Turn{
		{Role: store.RoleUser, Text: p.System},
		{Role: store.RoleModel, Text: p.Acknowledgement},
	}
}

// Assemble builds the ordered message list for the completion service: seed
// turns on first contact, otherwise the stored history, followed by the new
// user message.
func (p PromptSpec) Assemble(tr store.Transcript, userMessage string) []openai.ChatCompletionMessage {
	turns := tr.Turns
	if len(turns) == 0 {
		turns = p.SeedTurns()
	}
	out := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	for _, t := range turns {
		out = append(out, openai.ChatCompletionMessage{Role: apiRole(t.Role), Content: t.Text})
	}
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})
	return out
}

func apiRole(role string) string {
	if role == store.RoleModel {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
