// Package das parses OPeNDAP Dataset Attribute Structure documents.
//
// A DAS document is a list of named blocks opened by a line ending in "{",
// each holding attribute lines of the form
//
//	String long_name "Normalized Difference Vegetation Index";
//
// Only quoted attributes are kept. Block nesting is not tracked: every line
// ending in "{" starts a new block, so an enclosing "Attributes {" line shows
// up as an empty block.
package das

import (
	"bufio"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

const maxLineSize = 4 * 1024 * 1024

var ErrMalformedAttributeLine = errors.New("malformed attribute line")

// MalformedLineError reports an attribute line whose quoting cannot be parsed.
type MalformedLineError struct {
	Line int
	Text string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed attribute line %d: %q", e.Line, e.Text)
}

func (e *MalformedLineError) Is(target error) bool {
	return target == ErrMalformedAttributeLine
}

// Properties maps attribute name to its unquoted value.
type Properties map[string]string

// Blocks maps block name to its attributes.
type Blocks map[string]Properties

// Document maps a data id to the blocks parsed from its DAS document.
type Document map[string]Blocks

// Parse reads text and returns a document holding exactly one entry, keyed by
// dataID. A later block with the same name replaces an earlier one.
func Parse(text string, dataID string) (Document, error) {
	blocks := make(Blocks)
	var (
		current string
		props   Properties
		open    bool
	)
	flush := func() {
		if open {
			blocks[current] = props
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "{") {
			flush()
			current = strings.Fields(line)[0]
			props = make(Properties)
			open = true
			continue
		}
		if !strings.Contains(line, `"`) {
			continue
		}
		key, value, err := parseAttribute(line)
		if err != nil {
			return nil, &MalformedLineError{Line: lineNo, Text: line}
		}
		if open {
			props[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan das document, id:%s: %w", dataID, err)
	}
	flush()
	return Document{dataID: blocks}, nil
}

// parseAttribute splits `Type name "value";` into name and value. The name is
// the last field before the first quote, which drops the DAS type keyword.
// A line with nothing before the first quote is stored under the empty name.
func parseAttribute(line string) (string, string, error) {
	parts := strings.SplitN(line, `"`, 3)
	if len(parts) < 3 {
		return "", "", ErrMalformedAttributeLine
	}
	var name string
	if fields := strings.Fields(parts[0]); len(fields) > 0 {
		name = fields[len(fields)-1]
	}
	return name, parts[1], nil
}

// Merge copies every entry of other into d, replacing entries with the same id.
func (d Document) Merge(other Document) {
	for id, blocks := range other {
		d[id] = blocks
	}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for id, blocks := range d {
		bs := make(Blocks, len(blocks))
		for name, props := range blocks {
			ps := make(Properties, len(props))
			for k, v := range props {
				ps[k] = v
			}
			bs[name] = ps
		}
		out[id] = bs
	}
	return out
}

// IDs returns the data ids held by d, sorted.
func (d Document) IDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DataID derives the document key of a dataset URL: its file name with the
// trailing three characters (".nc") cut off.
func DataID(url string) string {
	name := path.Base(url)
	if len(name) < 3 {
		return name
	}
	return name[:len(name)-3]
}
