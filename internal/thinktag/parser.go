// Package thinktag incrementally splits a model's raw streaming output into
// reasoning ("thinking") text and visible content, given a stream that opens
// implicitly inside a <think> block and closes it with a literal </think>.
package thinktag

import "strings"

const closeTag = "</think>"

// Parser is a single-pass, streaming splitter. A zero value is not usable;
// construct with New.
type Parser struct {
	insideThinking bool
	pending        string // suffix of fed data that might be a partial </think>
}

// New returns a Parser positioned as if the stream just opened a thinking
// block (streams never send the literal opening <think> tag).
func New() *Parser {
	return &Parser{insideThinking: true}
}

// Feed consumes the next chunk of raw model output and returns the portion
// that resolved to reasoning text and the portion that resolved to visible
// content. Either may be empty. A chunk that ends mid-</think> is held back
// in p.pending until the next Feed call disambiguates it.
func (p *Parser) Feed(chunk string) (reasoning, content string) {
	data := p.pending + chunk
	p.pending = ""

	for {
		if !p.insideThinking {
			content += data
			return reasoning, content
		}

		idx := strings.Index(data, closeTag)
		if idx >= 0 {
			reasoning += data[:idx]
			data = data[idx+len(closeTag):]
			p.insideThinking = false
			continue
		}

		cut := partialSuffixLen(data, closeTag)
		reasoning += data[:len(data)-cut]
		p.pending = data[len(data)-cut:]
		return reasoning, content
	}
}

// Done reports whether the parser has seen a closing </think> and is now
// passing everything through as visible content.
func (p *Parser) Done() bool {
	return !p.insideThinking
}

// Flush returns any buffered partial-tag bytes as reasoning text. Call this
// once at end of stream: a stream that never emits </think> leaves its
// trailing "<", "</", "</t", ... lookahead buffer unresolved otherwise.
func (p *Parser) Flush() (reasoning string) {
	r := p.pending
	p.pending = ""
	return r
}

// partialSuffixLen returns the length of the longest suffix of data that is
// also a proper (non-full) prefix of tag, i.e. the number of trailing bytes
// that could still grow into tag on the next Feed call. For tag="</think>"
// this walks the sequence "</think", "</thin", ..., "</", "<" from longest
// to shortest and returns 0 if none match.
func partialSuffixLen(data, tag string) int {
	maxLen := len(tag) - 1
	if maxLen > len(data) {
		maxLen = len(data)
	}
	for l := maxLen; l > 0; l-- {
		if strings.HasSuffix(data, tag[:l]) {
			return l
		}
	}
	return 0
}

// Strip is the non-streaming fallback: given a complete response, it removes
// every <think>...</think> block and returns the reasoning and the remaining
// visible content separately. A buffered response with no literal <think>
// carries the same implicit opening as the streaming case, so a bare
// </think> is resolved the same way Parser.New does: everything before it is
// reasoning, everything after is content.
func Strip(full string) (reasoning, content string) {
	if !strings.Contains(full, "<think>") {
		if idx := strings.Index(full, closeTag); idx >= 0 {
			return full[:idx], strings.TrimLeft(full[idx+len(closeTag):], " \t\r\n")
		}
		return "", full
	}

	var reasonBuf, contentBuf strings.Builder
	rest := full
	for {
		open := strings.Index(rest, "<think>")
		if open < 0 {
			contentBuf.WriteString(rest)
			break
		}
		contentBuf.WriteString(rest[:open])
		rest = rest[open+len("<think>"):]
		close := strings.Index(rest, closeTag)
		if close < 0 {
			reasonBuf.WriteString(rest)
			break
		}
		reasonBuf.WriteString(rest[:close])
		rest = strings.TrimLeft(rest[close+len(closeTag):], " \t\r\n")
	}
	return reasonBuf.String(), contentBuf.String()
}
