package genconf

import (
	"strings"
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineComment
	lineKey
	lineOther // anything we do not understand; kept verbatim
)

// line is one physical line of the document. For key lines, prefix is the
// raw text up to and including the whitespace after '=', and suffix is an
// inline comment with its leading whitespace. raw is authoritative until
// the line is edited.
type line struct {
	kind   lineKind
	raw    string
	key    string
	value  string
	prefix string
	suffix string
}

func (l *line) render() string {
	if l.kind == lineKey && l.raw == "" {
		return l.prefix + l.value + l.suffix
	}
	return l.raw
}

func (l *line) setValue(v string) {
	if l.prefix == "" {
		l.prefix = l.key + " = "
	}
	l.value = v
	l.raw = ""
}

type section struct {
	name   string
	lead   []*line // comment block directly above the header
	header string
	body   []*line
}

// Document is an INI document that round-trips byte-for-byte. Edits touch
// only the lines they target; comments, blank lines, key order and other
// sections are left as they were.
type Document struct {
	preamble        []*line
	sections        []*section
	trailingNewline bool
}

// Parse reads text into a Document. It never fails: lines it cannot
// interpret are carried through unchanged.
func Parse(text string) *Document {
	doc := &Document{}
	if text == "" {
		doc.trailingNewline = true
		return doc
	}
	doc.trailingNewline = strings.HasSuffix(text, "\n")
	rows := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var cur *section
	for _, raw := range rows {
		if name, ok := parseHeader(raw); ok {
			s := &section{name: name, header: raw}
			// A comment block hugging a header belongs to it, unless it sits
			// in the preamble where it describes the whole file.
			if cur != nil {
				n := len(cur.body)
				i := n
				for i > 0 && cur.body[i-1].kind == lineComment {
					i--
				}
				s.lead = append(s.lead, cur.body[i:]...)
				cur.body = cur.body[:i]
			}
			doc.sections = append(doc.sections, s)
			cur = s
			continue
		}
		l := parseLine(raw)
		if cur == nil {
			doc.preamble = append(doc.preamble, l)
		} else {
			cur.body = append(cur.body, l)
		}
	}
	return doc
}

func parseHeader(raw string) (string, bool) {
	t := strings.TrimSpace(raw)
	if !strings.HasPrefix(t, "[") {
		return "", false
	}
	end := strings.Index(t, "]")
	if end < 0 {
		return "", false
	}
	if rest := strings.TrimSpace(t[end+1:]); rest != "" && !isComment(rest) {
		return "", false
	}
	return strings.TrimSpace(t[1:end]), true
}

func isComment(t string) bool {
	return strings.HasPrefix(t, "#") || strings.HasPrefix(t, ";")
}

func parseLine(raw string) *line {
	t := strings.TrimSpace(raw)
	switch {
	case t == "":
		return &line{kind: lineBlank, raw: raw}
	case isComment(t):
		return &line{kind: lineComment, raw: raw}
	}

	eq := strings.Index(raw, "=")
	if eq < 0 {
		return &line{kind: lineOther, raw: raw}
	}
	key := strings.TrimSpace(raw[:eq])
	if key == "" {
		return &line{kind: lineOther, raw: raw}
	}

	rest := raw[eq+1:]
	ws := len(rest) - len(strings.TrimLeft(rest, " \t"))
	prefix := raw[:eq+1] + rest[:ws]
	body := rest[ws:]

	var suffix string
	if i := inlineCommentStart(body); i >= 0 {
		suffix = body[i:]
		body = body[:i]
	}
	trimmed := strings.TrimRight(body, " \t")
	suffix = body[len(trimmed):] + suffix

	return &line{kind: lineKey, raw: raw, key: key, value: trimmed, prefix: prefix, suffix: suffix}
}

// inlineCommentStart finds a '#' or ';' preceded by whitespace and returns
// the index of that whitespace run.
func inlineCommentStart(s string) int {
	for i := 1; i < len(s); i++ {
		if (s[i] == '#' || s[i] == ';') && (s[i-1] == ' ' || s[i-1] == '\t') {
			j := i - 1
			for j > 0 && (s[j-1] == ' ' || s[j-1] == '\t') {
				j--
			}
			return j
		}
	}
	return -1
}

// String renders the document.
func (d *Document) String() string {
	var rows []string
	for _, l := range d.preamble {
		rows = append(rows, l.render())
	}
	for _, s := range d.sections {
		for _, l := range s.lead {
			rows = append(rows, l.render())
		}
		rows = append(rows, s.header)
		for _, l := range s.body {
			rows = append(rows, l.render())
		}
	}
	if len(rows) == 0 {
		return ""
	}
	out := strings.Join(rows, "\n")
	if d.trailingNewline {
		out += "\n"
	}
	return out
}

// Sections returns section names in document order.
func (d *Document) Sections() []string {
	names := make([]string, 0, len(d.sections))
	for _, s := range d.sections {
		names = append(names, s.name)
	}
	return names
}

func (d *Document) find(name string) *section {
	for i := len(d.sections) - 1; i >= 0; i-- {
		if d.sections[i].name == name {
			return d.sections[i]
		}
	}
	return nil
}

// HasSection reports whether a [name] header exists.
func (d *Document) HasSection(name string) bool {
	return d.find(name) != nil
}

// Get returns the value of key in section. The last occurrence wins, as it
// does for the generator.
func (d *Document) Get(sectionName, key string) (string, bool) {
	s := d.find(sectionName)
	if s == nil {
		return "", false
	}
	for i := len(s.body) - 1; i >= 0; i-- {
		if l := s.body[i]; l.kind == lineKey && l.key == key {
			return l.value, true
		}
	}
	return "", false
}

// Entry is one key/value pair.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entries returns the effective key/values of a section in first-seen order.
func (d *Document) Entries(sectionName string) []Entry {
	s := d.find(sectionName)
	if s == nil {
		return nil
	}
	var keys []string
	seen := map[string]bool{}
	for _, l := range s.body {
		if l.kind == lineKey && !seen[l.key] {
			seen[l.key] = true
			keys = append(keys, l.key)
		}
	}
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		v, _ := d.Get(sectionName, k)
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return entries
}

// Set assigns key in section, creating either as needed. An existing key
// is edited in place (its last occurrence); a new key goes after the last
// key line of the section; a new section is appended at the end.
func (d *Document) Set(sectionName, key, value string) {
	s := d.find(sectionName)
	if s == nil {
		s = d.appendSection(sectionName)
	}

	last := -1
	for i := len(s.body) - 1; i >= 0; i-- {
		l := s.body[i]
		if l.kind != lineKey {
			continue
		}
		if last < 0 {
			last = i
		}
		if l.key == key {
			if l.value != value {
				l.setValue(value)
			}
			return
		}
	}

	nl := &line{kind: lineKey, key: key}
	nl.setValue(value)
	at := last + 1
	s.body = append(s.body, nil)
	copy(s.body[at+1:], s.body[at:])
	s.body[at] = nl
}

func (d *Document) appendSection(name string) *section {
	if tail := d.lastLines(); len(tail) > 0 && tail[len(tail)-1].kind != lineBlank {
		d.appendLine(&line{kind: lineBlank})
	}
	s := &section{name: name, header: "[" + name + "]"}
	d.sections = append(d.sections, s)
	d.trailingNewline = true
	return s
}

func (d *Document) lastLines() []*line {
	if n := len(d.sections); n > 0 {
		s := d.sections[n-1]
		if len(s.body) == 0 {
			return []*line{{kind: lineKey}} // a bare header counts as content
		}
		return s.body
	}
	return d.preamble
}

func (d *Document) appendLine(l *line) {
	if n := len(d.sections); n > 0 {
		d.sections[n-1].body = append(d.sections[n-1].body, l)
		return
	}
	d.preamble = append(d.preamble, l)
}

// Delete removes every occurrence of key from section. It reports whether
// anything was removed.
func (d *Document) Delete(sectionName, key string) bool {
	s := d.find(sectionName)
	if s == nil {
		return false
	}
	kept := s.body[:0]
	removed := false
	for _, l := range s.body {
		if l.kind == lineKey && l.key == key {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	s.body = kept
	return removed
}

// RemoveSection drops a section with its header comment block.
func (d *Document) RemoveSection(name string) bool {
	idx := -1
	for i := len(d.sections) - 1; i >= 0; i-- {
		if d.sections[i].name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	removed := d.sections[idx]
	d.sections = append(d.sections[:idx], d.sections[idx+1:]...)

	prev := &d.preamble
	if idx > 0 {
		prev = &d.sections[idx-1].body
	}

	if idx == len(d.sections) {
		// Removed the last section: drop blank lines it leaves dangling.
		for len(*prev) > 0 && (*prev)[len(*prev)-1].kind == lineBlank {
			*prev = (*prev)[:len(*prev)-1]
		}
		return true
	}

	// Keep one separating blank line between what precedes and follows.
	endsBlank := len(*prev) == 0 || (*prev)[len(*prev)-1].kind == lineBlank
	hadBlank := len(removed.body) > 0 && removed.body[len(removed.body)-1].kind == lineBlank
	if !endsBlank && hadBlank {
		*prev = append(*prev, removed.body[len(removed.body)-1])
	}
	return true
}
