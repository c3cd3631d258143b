package canon

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// frontMatterDelim is the marker line bracketing the YAML header of a
// front-matter document, the same convention the teacher's issue exporter
// uses for its `.md` serialization mode (cmd/bd's markdown export).
const frontMatterDelim = "---\n"

// EncodeFrontMatter renders v as a `.md` front-matter document: a YAML
// header holding the document's fields, with no body section (gitddb
// documents carry no free-text content beyond their JSON value). Object
// keys are sorted first so the header is stable across peers, mirroring
// canon.Serialize's lexicographic guarantee for the JSON encodings.
func EncodeFrontMatter(v any) ([]byte, error) {
	ordered, err := toOrderedYAML(v)
	if err != nil {
		return nil, fmt.Errorf("canon: encode front-matter: %w", err)
	}
	header, err := yaml.Marshal(ordered)
	if err != nil {
		return nil, fmt.Errorf("canon: encode front-matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim)
	buf.Write(header)
	buf.WriteString(frontMatterDelim)
	return buf.Bytes(), nil
}

// DecodeFrontMatter parses a `.md` front-matter document back into a JSON
// value, round-tripping through encoding/json so the result matches what
// Parse would hand back for the JSON encoding of the same document (map
// values, json.Number for numerics).
func DecodeFrontMatter(data []byte) (any, error) {
	body := bytes.TrimPrefix(data, []byte(frontMatterDelim))
	end := bytes.Index(body, []byte(frontMatterDelim))
	if end < 0 {
		return nil, fmt.Errorf("canon: decode front-matter: missing closing delimiter")
	}
	header := body[:end]

	var raw any
	if err := yaml.Unmarshal(header, &raw); err != nil {
		return nil, fmt.Errorf("canon: decode front-matter: %w", err)
	}
	return yamlToJSON(raw)
}

// EncodeYAML renders v as a bare YAML document (the `.yml`/`.yaml` storage
// extension, no front-matter delimiters).
func EncodeYAML(v any) ([]byte, error) {
	ordered, err := toOrderedYAML(v)
	if err != nil {
		return nil, fmt.Errorf("canon: encode yaml: %w", err)
	}
	out, err := yaml.Marshal(ordered)
	if err != nil {
		return nil, fmt.Errorf("canon: encode yaml: %w", err)
	}
	return out, nil
}

// DecodeYAML parses a bare YAML document into a JSON value.
func DecodeYAML(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("canon: decode yaml: %w", err)
	}
	return yamlToJSON(raw)
}

// toOrderedYAML round-trips v through encoding/json and decodes the result
// into a yaml.Node, so the node's mapping keys keep the sorted order in
// which json.Marshal emits the keys of a map[string]any.
func toOrderedYAML(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out yaml.Node
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// yamlToJSON normalizes go-yaml's decode output (map[string]interface{}
// already for YAML 1.1 mappings with string keys, but int/float64 instead
// of json.Number) into the same shape canon.Parse produces, by round-tripping
// through encoding/json with UseNumber.
func yamlToJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: normalize yaml value: %w", err)
	}
	return Parse(b)
}
