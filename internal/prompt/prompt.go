package prompt

import (
	"fmt"
	"strings"
)

// Math styles accepted by SystemInstruction.
const (
	StylePlain       = "plain"
	StyleUnifiedMath = "unified-math"
)

// Section labels, in the order they appear in a prompt.
const (
	LabelPDF   = "[PDF Context]"
	LabelImage = "[Image Context]"
)

var labelOrder = []string{LabelPDF, LabelImage}

const (
	baseInstruction = "You are a helpful quantum physics assistant. Explain concepts clearly and deeply."
	mathInstruction = " When you write an equation, put the whole equation in a single $$ ... $$ block; never split one equation across several blocks."
)

// SystemInstruction returns the fixed system message for a math style.
func SystemInstruction(style string) (string, error) {
	switch style {
	case StylePlain, "":
		return baseInstruction, nil
	case StyleUnifiedMath:
		return baseInstruction + mathInstruction, nil
	default:
		return "", fmt.Errorf("unknown math style %q (valid: %s, %s)", style, StylePlain, StyleUnifiedMath)
	}
}

// Block is a labeled piece of extracted context.
type Block struct {
	Label string
	Text  string
}

// Compose builds the user message. Without context it is the bare question;
// otherwise the known sections come first in fixed order, then any other
// labels in argument order, then the question. Empty blocks are ignored and
// only the first block of each label is used.
func Compose(question string, blocks ...Block) string {
	byLabel := make(map[string]string, len(blocks))
	var extra []string
	for _, b := range blocks {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		if _, seen := byLabel[b.Label]; seen {
			continue
		}
		byLabel[b.Label] = b.Text
		if !isKnownLabel(b.Label) {
			extra = append(extra, b.Label)
		}
	}
	if len(byLabel) == 0 {
		return question
	}

	var sb strings.Builder
	for _, label := range append(append([]string{}, labelOrder...), extra...) {
		text, ok := byLabel[label]
		if !ok {
			continue
		}
		sb.WriteString(label)
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	return sb.String()
}

func isKnownLabel(label string) bool {
	for _, l := range labelOrder {
		if l == label {
			return true
		}
	}
	return false
}
