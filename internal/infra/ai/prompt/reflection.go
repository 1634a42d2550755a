package prompt

import (
	"encoding/json"
	"fmt"
)

// GetReflectionSystemPrompt fixes the response shape of the critique-and-fix call.
func GetReflectionSystemPrompt() string {
	return `You are a Data Quality Agent. Validate and fix JSON data. You must produce one valid JSON object only (no markdown, no commentary, no code fences).

Schema:
{
  "refined_data": { ...the full input object with any corrections applied... },
  "was_modified": <true|false>,
  "notes": "<string explaining what was fixed, or why nothing was>"
}

Requirements:
- refined_data must contain every input field, corrected or not.
- was_modified is true only if at least one value in refined_data differs from the input.
- Never invent fields that were not in the input.`
}

// GetReflectionUserPrompt wraps the rules and payload into the user message.
func GetReflectionUserPrompt(rules string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return fmt.Sprintf(`RULES: %s
DATA: %s

INSTRUCTIONS:
1. Critique data against rules.
2. Fix errors if found.
3. Return JSON: { "refined_data": {...}, "was_modified": bool, "notes": "string" }`, rules, data), nil
}
