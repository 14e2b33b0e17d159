package models

import "time"

// Preset is a prompt template from the catalog.
type Preset struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description" yaml:"description"`
	Tags            []string `json:"tags" yaml:"tags"`
	ButtonText      string   `json:"button_text" yaml:"button_text"`
	LoadingText     string   `json:"loading_text" yaml:"loading_text"`
	InstructionText string   `json:"instruction_text" yaml:"instruction_text"`
	SystemPrompt    string   `json:"system_prompt" yaml:"system_prompt"`
	UserPrompts     []string `json:"user_prompts" yaml:"user_prompts"`
}

// PresetPin is a user's sticky preset assignment. It lives only in process
// memory and is bounded by the owning rate window's reset time.
type PresetPin struct {
	Preset     Preset    `json:"preset"`
	SelectedAt time.Time `json:"selected_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
