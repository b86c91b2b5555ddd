// Package file provides file-based implementations of driven port interfaces.
//
// Adapters:
//   - ConfigStore: TOML configuration at ~/.doraemo/config.toml
//   - PromptStore: user-editable prompt files under ~/.doraemo/prompts
package file
