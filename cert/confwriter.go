package cert

import (
	"strings"

	"github.com/srl-labs/devca/utils"
)

// KV is a single key/value line of a config section. Order is significant,
// hence no map.
type KV struct {
	Key   string
	Value string
}

// Section is a named, ordered group of config lines.
type Section struct {
	Name   string
	Values []KV
}

// RenderConf renders sections in the `[section]` / `key = value` line format
// consumed by the certificate engine. Deterministic for a given input.
func RenderConf(sections []Section) string {
	var sb strings.Builder

	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("[" + s.Name + "]\n")
		for _, kv := range s.Values {
			sb.WriteString(kv.Key + " = " + kv.Value + "\n")
		}
	}

	return sb.String()
}

// WriteConf writes the rendered sections to path, overwriting
// unconditionally. The config is regenerated per run and never user-edited.
func WriteConf(path string, sections []Section) error {
	return utils.CreateFile(path, RenderConf(sections))
}
