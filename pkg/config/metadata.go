package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMultipleBlocks is returned when a script embeds more than one offload
// config block.
var ErrMultipleBlocks = errors.New("offload: multiple offload config blocks found in script")

// blockPattern matches embedded metadata blocks of the form
//
//	# /// <type>
//	# <content line>
//	# ///
//
// where every content line starts with "#" optionally followed by a space.
var blockPattern = regexp.MustCompile(`(?m)^# /// (?P<type>[a-zA-Z0-9-]+)$\s(?P<content>(^#(| .*)$\s)+)^# ///$`)

const blockType = "offload"

// BlockReader parses the embedded "# /// offload" comment block out of
// script text. The block body is YAML keyed by target name; nested mappings
// under a target are its variants.
type BlockReader struct{}

// Read extracts and parses the offload config block. It returns nil when the
// script carries no block, and ErrMultipleBlocks when it carries several.
func (BlockReader) Read(script string) (map[string]any, error) {
	var contents []string
	for _, m := range blockPattern.FindAllStringSubmatch(script, -1) {
		if m[blockPattern.SubexpIndex("type")] == blockType {
			contents = append(contents, m[blockPattern.SubexpIndex("content")])
		}
	}
	switch len(contents) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, ErrMultipleBlocks
	}

	body := uncomment(contents[0])
	var meta map[string]any
	if err := yaml.Unmarshal([]byte(body), &meta); err != nil {
		return nil, fmt.Errorf("offload: parsing embedded config block: %w", err)
	}
	return meta, nil
}

// uncomment strips the leading "# " (or bare "#") from every block line.
func uncomment(content string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(content, "\n") {
		switch {
		case strings.HasPrefix(line, "# "):
			b.WriteString(line[2:])
		case strings.HasPrefix(line, "#"):
			b.WriteString(line[1:])
		}
	}
	return b.String()
}
