package render

import "regexp"

// adjacentBlocks matches a closing $$ followed, after optional whitespace, by
// an opening $$.
var adjacentBlocks = regexp.MustCompile(`^\$\$\s*\$\$`)

// MergeMathBlocks joins runs of consecutive $$...$$ blocks into one block, so
// "$$a$$\n$$b$$" becomes "$$a\nb$$".
func MergeMathBlocks(text string) string {
	var out []byte
	i := 0
	open := false
	for i < len(text) {
		if text[i] == '$' && i+1 < len(text) && text[i+1] == '$' {
			if open {
				if loc := adjacentBlocks.FindStringIndex(text[i:]); loc != nil {
					// Closing delimiter immediately reopened: keep the block open.
					out = append(out, '\n')
					i += loc[1]
					continue
				}
			}
			open = !open
			out = append(out, '$', '$')
			i += 2
			continue
		}
		out = append(out, text[i])
		i++
	}
	return string(out)
}
