package data

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidJSON is returned when formatting or querying malformed JSON.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrInvalidYAML is returned when formatting malformed YAML.
	ErrInvalidYAML = errors.New("invalid YAML")

	// ErrNoMatch is returned when a JSON query selects nothing.
	ErrNoMatch = errors.New("no match")
)

var jsonOptions = &pretty.Options{
	Width:    80,
	Prefix:   "",
	Indent:   "  ",
	SortKeys: false,
}

// FormatJSON pretty-prints src with two-space indentation, keeping key
// order.
func FormatJSON(src string) (string, error) {
	if !gjson.Valid(src) {
		return "", ErrInvalidJSON
	}
	return string(pretty.PrettyOptions([]byte(src), jsonOptions)), nil
}

// FormatYAML re-encodes every document in src with two-space indentation.
// Comments are kept.
func FormatYAML(src string) (string, error) {
	dec := yaml.NewDecoder(strings.NewReader(src))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	docs := 0
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		if err := enc.Encode(&doc); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
		docs++
	}
	if docs == 0 {
		return "", nil
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
