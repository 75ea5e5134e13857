// yaml_store.go saves Settings back to disk while preserving user comments,
// the yaml.Node equivalent of the teacher's update_yaml.go line-scanning
// technique. yaml.v3 parses comments into the Node tree directly, so rather
// than re-implementing indentation tracking over a flat struct (the
// teacher's approach, built for one fixed Settings shape) we parse the
// existing document into a Node tree and replace only the `players` and
// `debug` values — comments and formatting the user wrote on other
// top-level keys survive untouched. The `players` mapping is re-encoded
// whole, so comments inside it are not kept. This generalizes more cleanly to our
// dynamic `players` map than the teacher's scanner does.
package conf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SaveYAML writes settings to path. When path already holds a YAML mapping,
// only its `players` and `debug` values are replaced, so comments on other
// top-level keys are kept; comments inside `players` are lost, whether or
// not a player entry changed.
func SaveYAML(path string, settings *Settings) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return writeFresh(path, settings)
		}
		return fmt.Errorf("reading existing config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(existing, &doc); err != nil || len(doc.Content) == 0 {
		return writeFresh(path, settings)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return writeFresh(path, settings)
	}

	replaceOrAppendMappingValue(root, "players", playersNode(settings.Players))
	replaceScalarOrAppend(root, "debug", settings.Debug)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling updated config: %w", err)
	}
	return atomicWrite(path, out)
}

func writeFresh(path string, settings *Settings) error {
	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return atomicWrite(path, out)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // config file, not secret
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

func playersNode(players map[string]PlayerConfiguration) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for name, p := range players {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
		var valNode yaml.Node
		_ = valNode.Encode(p)
		node.Content = append(node.Content, keyNode, &valNode)
	}
	return node
}

// replaceOrAppendMappingValue replaces the value node for key in a mapping
// node, or appends a new key/value pair if key doesn't exist yet.
func replaceOrAppendMappingValue(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	mapping.Content = append(mapping.Content, keyNode, value)
}

func replaceScalarOrAppend(mapping *yaml.Node, key string, value any) {
	var valNode yaml.Node
	_ = valNode.Encode(value)
	replaceOrAppendMappingValue(mapping, key, &valNode)
}
