package curriculum

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"reclaim/common"
)

var ExerciseTypes = []string{"educational", "interactive", "assessment", "reflection", "planning", "practice", "reading"}

const (
	PromptText      = "text"
	PromptScale     = "scale"
	PromptChoice    = "choice"
	PromptChecklist = "checklist"
	PromptBoolean   = "boolean"
)

// ExerciseContent is the decoded Exercise.Content blob. Only prompts matter
// to the server; everything else is rendered by the client.
type ExerciseContent struct {
	Instructions string   `json:"instructions,omitempty"`
	Prompts      []Prompt `json:"prompts,omitempty"`
}

type Prompt struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
}

func IsExerciseType(t string) bool {
	for _, known := range ExerciseTypes {
		if known == t {
			return true
		}
	}
	return false
}

func ParseContent(raw datatypes.JSON) (ExerciseContent, error) {
	var content ExerciseContent
	if len(bytes.TrimSpace(raw)) == 0 {
		return content, nil
	}
	err := json.Unmarshal(raw, &content)
	return content, err
}

// ValidateResponses checks a response payload against the exercise's declared
// prompts. Drafts (complete=false) may omit required prompts.
func ValidateResponses(content datatypes.JSON, responses json.RawMessage, complete bool) (datatypes.JSON, error) {
	parsed, err := ParseContent(content)
	if err != nil {
		return nil, common.Internal("Exercise content is malformed", err)
	}

	if len(bytes.TrimSpace(responses)) == 0 || bytes.Equal(bytes.TrimSpace(responses), []byte("null")) {
		responses = json.RawMessage("{}")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(responses, &fields); err != nil {
		return nil, invalid("responses must be a JSON object")
	}

	if len(parsed.Prompts) == 0 {
		for key, value := range fields {
			if key != "acknowledged" {
				return nil, invalid(fmt.Sprintf("unexpected response field %q", key))
			}
			var ack bool
			if err := json.Unmarshal(value, &ack); err != nil {
				return nil, invalid("acknowledged must be a boolean")
			}
		}
		return datatypes.JSON(responses), nil
	}

	prompts := make(map[string]Prompt, len(parsed.Prompts))
	for _, p := range parsed.Prompts {
		prompts[p.ID] = p
	}

	for key, value := range fields {
		p, ok := prompts[key]
		if !ok {
			return nil, invalid(fmt.Sprintf("unexpected response field %q", key))
		}
		if err := validatePrompt(p, value); err != nil {
			return nil, err
		}
	}

	if complete {
		for _, p := range parsed.Prompts {
			if _, ok := fields[p.ID]; p.Required && !ok {
				return nil, invalid(fmt.Sprintf("%s is required", p.ID))
			}
		}
	}

	return datatypes.JSON(responses), nil
}

func validatePrompt(p Prompt, value json.RawMessage) error {
	switch p.Kind {
	case PromptText:
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return invalid(fmt.Sprintf("%s must be text", p.ID))
		}
		if p.Required && s == "" {
			return invalid(fmt.Sprintf("%s must not be empty", p.ID))
		}
	case PromptScale:
		var n float64
		if err := json.Unmarshal(value, &n); err != nil {
			return invalid(fmt.Sprintf("%s must be a number", p.ID))
		}
		if (p.Min != nil && n < *p.Min) || (p.Max != nil && n > *p.Max) {
			return invalid(fmt.Sprintf("%s is out of range", p.ID))
		}
	case PromptChoice:
		var s string
		if err := json.Unmarshal(value, &s); err != nil || !contains(p.Options, s) {
			return invalid(fmt.Sprintf("%s must be one of the listed options", p.ID))
		}
	case PromptChecklist:
		var items []string
		if err := json.Unmarshal(value, &items); err != nil {
			return invalid(fmt.Sprintf("%s must be a list", p.ID))
		}
		for _, item := range items {
			if !contains(p.Options, item) {
				return invalid(fmt.Sprintf("%s contains an unknown option %q", p.ID, item))
			}
		}
	case PromptBoolean:
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return invalid(fmt.Sprintf("%s must be true or false", p.ID))
		}
	default:
		return common.Internal("Exercise content is malformed", fmt.Errorf("prompt %s has unknown kind %q", p.ID, p.Kind))
	}
	return nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

func invalid(message string) *common.AppError {
	return common.Validation(message, nil)
}
