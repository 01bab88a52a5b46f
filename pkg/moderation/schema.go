package moderation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Nephrolytics-ai/radiosafe/pkg/model"
	"github.com/Nephrolytics-ai/radiosafe/pkg/utils"
	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// wireLyricWord and wireResult are the exact shape requested from the provider.
type wireLyricWord struct {
	Text       string  `json:"text" jsonschema:"description=One word or a short phrase in reading order"`
	IsExplicit bool    `json:"isExplicit" jsonschema:"description=True when the token is not suitable for broadcast"`
	Reason     *string `json:"reason,omitempty" jsonschema:"description=Why the token was flagged"`
}

type wireResult struct {
	Rating     string          `json:"rating" jsonschema:"enum=Clean,enum=Explicit,enum=Risky"`
	Summary    string          `json:"summary" jsonschema:"description=A brief summary of why this rating was given"`
	Lyrics     []wireLyricWord `json:"lyrics"`
	Confidence int             `json:"confidence" jsonschema:"minimum=0,maximum=100"`
}

const schemaResourceURL = "analysis-result.json"

var (
	schemaOnce    sync.Once
	schemaJSON    []byte
	schemaErr     error
	validatorOnce sync.Once
	validator     *jsonschema.Schema
	validatorErr  error
)

// ResponseSchema returns a fresh copy of the JSON Schema sent to the provider as
// the required response shape.
func ResponseSchema() (map[string]any, error) {
	raw, err := responseSchemaJSON()
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return schemaMap, nil
}

func responseSchemaJSON() ([]byte, error) {
	schemaOnce.Do(func() {
		reflector := invopop.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
			Anonymous:                 true,
		}
		schema := reflector.Reflect(&wireResult{})

		raw, err := json.Marshal(schema)
		if err != nil {
			schemaErr = err
			return
		}

		var schemaMap map[string]any
		if err := json.Unmarshal(raw, &schemaMap); err != nil {
			schemaErr = err
			return
		}
		delete(schemaMap, "$schema")
		delete(schemaMap, "$id")

		if err := allowNullReason(schemaMap); err != nil {
			schemaErr = err
			return
		}
		schemaJSON, schemaErr = json.Marshal(schemaMap)
	})
	return schemaJSON, schemaErr
}

// allowNullReason lets the model send "reason": null for unflagged tokens.
func allowNullReason(schemaMap map[string]any) error {
	reason, ok := lookupPath(schemaMap, "properties", "lyrics", "items", "properties", "reason")
	if !ok {
		return errors.New("schema is missing lyrics.items.properties.reason")
	}
	reason["type"] = []any{"string", "null"}
	return nil
}

func lookupPath(node map[string]any, keys ...string) (map[string]any, bool) {
	current := node
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func compiledValidator() (*jsonschema.Schema, error) {
	validatorOnce.Do(func() {
		raw, err := responseSchemaJSON()
		if err != nil {
			validatorErr = err
			return
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			validatorErr = err
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaResourceURL, doc); err != nil {
			validatorErr = err
			return
		}
		validator, validatorErr = compiler.Compile(schemaResourceURL)
	})
	return validator, validatorErr
}

// ParseResult validates the provider's response text against the response schema
// and converts it into an AnalysisResult. Empty text is ErrEmptyResponse; anything
// that is not valid JSON of the right shape is ErrSchemaViolation.
func ParseResult(text string) (model.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.AnalysisResult{}, utils.WrapIfNotNil(model.ErrEmptyResponse)
	}

	schema, err := compiledValidator()
	if err != nil {
		return model.AnalysisResult{}, utils.WrapIfNotNil(err)
	}

	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return model.AnalysisResult{}, utils.WrapIfNotNil(fmt.Errorf("%w: invalid JSON: %v", model.ErrSchemaViolation, err))
	}
	if err := schema.Validate(instance); err != nil {
		return model.AnalysisResult{}, utils.WrapIfNotNil(fmt.Errorf("%w: %v", model.ErrSchemaViolation, err))
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return model.AnalysisResult{}, utils.WrapIfNotNil(fmt.Errorf("%w: %v", model.ErrSchemaViolation, err))
	}
	return wire.toModel(), nil
}

func (w wireResult) toModel() model.AnalysisResult {
	lyrics := make([]model.LyricWord, 0, len(w.Lyrics))
	for _, word := range w.Lyrics {
		lyric := model.LyricWord{
			Text:       word.Text,
			IsExplicit: word.IsExplicit,
		}
		if word.Reason != nil {
			lyric.Reason = strings.TrimSpace(*word.Reason)
		}
		lyrics = append(lyrics, lyric)
	}

	return model.AnalysisResult{
		Rating:     model.Rating(w.Rating),
		Summary:    w.Summary,
		Confidence: w.Confidence,
		Lyrics:     lyrics,
	}
}
