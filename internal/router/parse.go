package router

import "strings"

// ParseCommand splits chat text of the form "/<target> <action> [args...]"
// into its parts. ok is false when the text is not a slash command at all.
// action may come back empty; the caller decides whether that is an error.
//
// A trailing "@botname" on the target (Telegram group syntax) is dropped.
func ParseCommand(text string) (target, action string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", nil, false
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return "", "", nil, false
	}

	target = strings.TrimPrefix(tokens[0], "/")
	if at := strings.IndexByte(target, '@'); at >= 0 {
		target = target[:at]
	}
	if target == "" {
		return "", "", nil, false
	}

	if len(tokens) > 1 {
		action = tokens[1]
	}
	if len(tokens) > 2 {
		args = tokens[2:]
	} else {
		args = []string{}
	}
	return target, action, args, true
}

// tokenize splits a command line into tokens with quote and backslash
// support, e.g. `/gold set_limit "1 900" --dry`.
func tokenize(s string) []string {
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if esc {
			buf.WriteByte(ch)
			esc = false
			continue
		}
		if ch == '\\' {
			esc = true
			continue
		}
		if inQ {
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"', '\'':
			inQ = true
			qChar = ch
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}
