package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// RefPrefix marks a string input as a reference to an earlier step's output.
const RefPrefix = "step_"

// Path is a parsed reference expression such as "step_1.urls[0].link".
type Path struct {
	expr     string
	segments []segment
}

// segment is one dotted component with any number of trailing [n] indexes.
type segment struct {
	name    string
	indexes []int
}

// ParsePath parses expr into a Path. The grammar is
//
//	path    = segment { "." segment }
//	segment = name { "[" digits "]" }
func ParsePath(expr string) (Path, error) {
	p := &pathParser{src: strings.TrimSpace(expr)}
	segs, err := p.parsePath()
	if err != nil {
		return Path{}, fmt.Errorf("parse reference %q: %w", expr, err)
	}
	return Path{expr: p.src, segments: segs}, nil
}

func (p Path) String() string {
	return p.expr
}

// StepID returns the step id the path starts from.
func (p Path) StepID() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[0].name
}

type pathParser struct {
	src string
	pos int
}

func (p *pathParser) parsePath() ([]segment, error) {
	if p.src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	var segs []segment
	for {
		seg, err := p.parseSegment()
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		if p.done() {
			return segs, nil
		}
		if p.src[p.pos] != '.' {
			return nil, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
		}
		p.pos++
	}
}

func (p *pathParser) parseSegment() (segment, error) {
	start := p.pos
	for !p.done() && !strings.ContainsRune(".[]", rune(p.src[p.pos])) {
		p.pos++
	}
	if p.pos == start {
		return segment{}, fmt.Errorf("expected field name at offset %d", start)
	}
	seg := segment{name: p.src[start:p.pos]}
	for !p.done() && p.src[p.pos] == '[' {
		idx, err := p.parseIndex()
		if err != nil {
			return segment{}, err
		}
		seg.indexes = append(seg.indexes, idx)
	}
	return seg, nil
}

func (p *pathParser) parseIndex() (int, error) {
	p.pos++ // '['
	start := p.pos
	for !p.done() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected index digits at offset %d", start)
	}
	if p.done() || p.src[p.pos] != ']' {
		return 0, fmt.Errorf("unclosed index at offset %d", start-1)
	}
	idx, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, err
	}
	p.pos++ // ']'
	return idx, nil
}

func (p *pathParser) done() bool {
	return p.pos >= len(p.src)
}

// Resolve evaluates the path against the results recorded so far. It never
// panics: a missing key, an out-of-range index or a value that cannot be
// descended into all report ok == false.
//
// A path that ends on a search result yields that result's link.
func (p Path) Resolve(results Results) (any, bool) {
	if len(p.segments) == 0 {
		return nil, false
	}
	var current any = results
	for _, seg := range p.segments {
		next, ok := lookupField(current, seg.name)
		if !ok {
			return nil, false
		}
		if f, isFailure := next.(Failure); isFailure {
			return f, true
		}
		for _, idx := range seg.indexes {
			next, ok = lookupIndex(next, idx)
			if !ok {
				return nil, false
			}
		}
		current = next
	}
	return coerceTerminal(current), true
}

func lookupField(v any, name string) (any, bool) {
	switch val := v.(type) {
	case Results:
		out, ok := val[name]
		return out, ok
	case StepOutput:
		return val.field(name)
	case SearchResult:
		return val.field(name)
	case map[string]any:
		out, ok := val[name]
		return out, ok
	case map[string]string:
		out, ok := val[name]
		return out, ok
	default:
		return nil, false
	}
}

func lookupIndex(v any, idx int) (any, bool) {
	switch val := v.(type) {
	case []SearchResult:
		if idx < len(val) {
			return val[idx], true
		}
	case []string:
		if idx < len(val) {
			return val[idx], true
		}
	case []any:
		if idx < len(val) {
			return val[idx], true
		}
	}
	return nil, false
}

func coerceTerminal(v any) any {
	switch val := v.(type) {
	case SearchResult:
		return val.Link
	case StepOutput:
		if f, failed := val.Failure(); failed {
			return f
		}
	case map[string]any:
		_, hasTitle := val["title"]
		if link, ok := val["link"].(string); ok && hasTitle {
			return link
		}
	}
	return v
}
