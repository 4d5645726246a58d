package mime

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Entry is one RFC 1524 mailcap entry: a view command plus the flags that
// govern how ViewAttachment invokes it.
type Entry struct {
	TypeField string // "type/subtype" or "type/*" as written in the file
	Command   string

	NeedsTerminal      bool
	Copiousoutput      bool
	Autoview           bool
	Composecommand     string
	Composetypecommand string
	Printcommand       string
	Edit               string
	Nametemplate       string
	Description        string
	Test               string
}

func (e *Entry) matches(mimeType string) bool {
	if strings.EqualFold(e.TypeField, mimeType) {
		return true
	}
	typ, sub, ok := strings.Cut(e.TypeField, "/")
	if !ok || sub != "*" {
		return false
	}
	mt, _, _ := strings.Cut(mimeType, "/")
	return strings.EqualFold(typ, mt)
}

// LookupOpts narrows Lookup's match per spec.md step 4 ("with autoview
// flag in pager mode").
type LookupOpts struct {
	RequireAutoview bool
}

// Lookup returns the first entry in entries matching mimeType and opts,
// mailcap's own first-match-wins rule.
func Lookup(entries []Entry, mimeType string, opts LookupOpts) (*Entry, bool) {
	for i := range entries {
		e := &entries[i]
		if !e.matches(mimeType) {
			continue
		}
		if opts.RequireAutoview && !e.Autoview {
			continue
		}
		return e, true
	}
	return nil, false
}

// ParseFile reads one mailcap file, in the format described by RFC 1524:
// "type/subtype; command; flag1; flag2=value". A trailing backslash
// continues an entry onto the next line; "#" starts a comment.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse is ParseFile's reader-based core, split out for testing without
// touching the filesystem.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	var pending strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if strings.HasSuffix(line, `\`) {
			pending.WriteString(strings.TrimSuffix(line, `\`))
			continue
		}
		pending.WriteString(line)
		full := strings.TrimSpace(pending.String())
		pending.Reset()

		if full == "" || strings.HasPrefix(full, "#") {
			continue
		}
		e, err := parseEntry(full)
		if err != nil {
			continue // malformed lines are skipped, not fatal, per mailcap convention
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mime: mailcap: %w", err)
	}
	return entries, nil
}

// splitFields splits s on ';', honoring "\;" as a literal semicolon inside
// a field (mailcap's own escaping rule, most often needed in commands).
func splitFields(s string) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == ';' {
			cur.WriteByte(';')
			i++
			continue
		}
		if s[i] == ';' {
			fields = append(fields, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	fields = append(fields, strings.TrimSpace(cur.String()))
	return fields
}

func parseEntry(line string) (Entry, error) {
	fields := splitFields(line)
	if len(fields) < 2 {
		return Entry{}, fmt.Errorf("mime: mailcap: need type and command, got %q", line)
	}
	e := Entry{TypeField: strings.ToLower(strings.TrimSpace(fields[0])), Command: fields[1]}
	for _, flag := range fields[2:] {
		name, value, hasValue := strings.Cut(flag, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		switch name {
		case "needsterminal":
			e.NeedsTerminal = true
		case "copiousoutput":
			e.Copiousoutput = true
		case "x-mutt-autoview", "autoview":
			e.Autoview = true
		case "compose":
			if hasValue {
				e.Composecommand = value
			}
		case "composetyped":
			if hasValue {
				e.Composetypecommand = value
			}
		case "print":
			if hasValue {
				e.Printcommand = value
			}
		case "edit":
			if hasValue {
				e.Edit = value
			}
		case "nametemplate":
			if hasValue {
				e.Nametemplate = value
			}
		case "description":
			if hasValue {
				e.Description = value
			}
		case "test":
			if hasValue {
				e.Test = value
			}
		}
	}
	return e, nil
}

// LoadChain parses every mailcap file named in paths (the colon-separated
// list a MAILCAPS environment variable or its default search path would
// carry) and concatenates their entries in order, so an earlier file's
// entries take priority — mailcap's documented precedence.
func LoadChain(paths []string) ([]Entry, error) {
	var all []Entry
	for _, p := range paths {
		if p == "" {
			continue
		}
		entries, err := ParseFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// expandCommand substitutes mailcap's %-placeholders: %s is the staged
// filename, %t is "type/subtype", %{param} is a Content-Type parameter.
// It reports piped=true when the template has no %s, meaning the command
// reads the part from its own stdin rather than opening filename.
func expandCommand(template, filename, mimeType string, params map[string]string) (cmd string, piped bool) {
	piped = !strings.Contains(template, "%s")
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		if template[i] != '%' || i+1 >= len(template) {
			b.WriteByte(template[i])
			continue
		}
		switch template[i+1] {
		case 's':
			b.WriteString(shellQuote(filename))
			i++
		case 't':
			b.WriteString(shellQuote(mimeType))
			i++
		case '{':
			end := strings.IndexByte(template[i+2:], '}')
			if end < 0 {
				b.WriteByte(template[i])
				continue
			}
			key := template[i+2 : i+2+end]
			b.WriteString(shellQuote(params[key]))
			i += 2 + end
		case '%':
			b.WriteByte('%')
			i++
		default:
			b.WriteByte(template[i])
		}
	}
	return b.String(), piped
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// expandNametemplate fills a mailcap "nametemplate=foo%s.html" pattern
// with base. An empty template returns base unchanged; a template with no
// %s placeholder is returned as it is.
func expandNametemplate(template, base string) string {
	if template == "" {
		return base
	}
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", base, 1)
	}
	return template
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
