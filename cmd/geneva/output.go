package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// emit writes v as JSON when --json or --jq is set, and calls human otherwise.
func emit(c *cli.Context, v interface{}, human func(w io.Writer)) error {
	w := c.App.Writer
	if filter := c.String("jq"); filter != "" {
		return outputJQ(w, v, filter)
	}
	if c.Bool("json") {
		return outputJSON(w, v)
	}
	human(w)
	return nil
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputJQ runs filter over v and writes every result on its own line.
// Strings are written raw, like jq -r.
func outputJQ(w io.Writer, v interface{}, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// gojq only accepts plain JSON values, so round-trip typed structs
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to unmarshal output: %w", err)
	}

	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		if s, isString := result.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		out, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Fprintln(w, string(out))
	}
}

// formatOptional renders a nullable column.
func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "-"
}
