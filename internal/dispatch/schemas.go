package dispatch

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/syncq/internal/ir"
	"github.com/roach88/syncq/internal/queue"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "file:///schemas/"

var schemaPrinter = message.NewPrinter(language.English)

// payloadSchemas holds one compiled schema per known action type.
type payloadSchemas map[queue.ActionType]*jsonschema.Schema

// compileSchemas loads every embedded payload schema. A known action type
// without a schema file is a build defect and fails here.
func compileSchemas() (payloadSchemas, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for _, t := range queue.KnownActionTypes() {
		data, err := schemaFS.ReadFile("schemas/" + string(t) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema for %s: %w", t, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse schema for %s: %w", t, err)
		}
		if err := c.AddResource(schemaBaseURL+string(t)+".json", doc); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", t, err)
		}
	}

	out := make(payloadSchemas, len(queue.KnownActionTypes()))
	for _, t := range queue.KnownActionTypes() {
		sch, err := c.Compile(schemaBaseURL + string(t) + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", t, err)
		}
		out[t] = sch
	}
	return out, nil
}

// validate checks payload against the schema for t. Types without a
// schema are not validated.
func (s payloadSchemas) validate(t queue.ActionType, payload ir.Document) error {
	sch, ok := s[t]
	if !ok {
		return nil
	}
	if payload == nil {
		payload = ir.Document{}
	}

	// The validator only understands plain JSON values, so the payload
	// goes through its canonical encoding first.
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if err := sch.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("invalid payload: %s", flattenValidation(ve))
		}
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// flattenValidation renders the validator's indented cause tree as a
// single line, dropping the leading "validation failed" header.
func flattenValidation(ve *jsonschema.ValidationError) string {
	lines := strings.Split(ve.LocalizedError(schemaPrinter), "\n")
	parts := make([]string, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		if line == "" || (i == 0 && len(lines) > 1) {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "; ")
}
