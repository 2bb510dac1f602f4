// Package graph renders a dialog tree as a Mermaid flowchart, optionally
// overlaying the live stack of one conversation.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/prompt"
)

// Overlay marks the frames of a running conversation on the static tree.
// Active is the frame waiting for the next turn; Stacked are the suspended
// frames underneath it.
type Overlay struct {
	Stacked []string
	Active  string
}

// GenerateMermaid produces Mermaid flowchart syntax for the tree rooted at
// root. Shapes follow the dialog kind:
//   - root: ((circle))
//   - component: [[subroutine]]
//   - prompt: [/parallelogram/]
//   - waterfall and everything else: [rectangle]
//
// Containment edges run solid; the edge to a component's initial dialog is
// labeled "begins". Overlay styles mark the given conversation's frames.
func GenerateMermaid(root dialog.Dialog, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	if root != nil {
		writeNode(&sb, root, true)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for high contrast regardless of theme.
		sb.WriteString("    classDef stacked fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef active fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Stacked {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] {
				continue
			}
			seen[safeID] = true
			sb.WriteString(fmt.Sprintf("    class %s stacked;\n", safeID))
		}
		if overlay.Active != "" {
			sb.WriteString(fmt.Sprintf("    class %s active;\n", sanitizeMermaidID(overlay.Active)))
		}
	}

	return sb.String()
}

// writeNode emits one dialog and recurses into components.
func writeNode(sb *strings.Builder, d dialog.Dialog, isRoot bool) {
	safeID := sanitizeMermaidID(d.ID())
	opener, closer := "[", "]"
	label := d.ID()

	switch v := d.(type) {
	case *dialog.Component:
		opener, closer = "[[", "]]"
	case *dialog.Waterfall:
		label = fmt.Sprintf("%s (%d steps)", d.ID(), v.StepCount())
	case *prompt.OAuth:
		opener, closer = "[/", "/]"
		label = d.ID() + " 🔐"
	case *prompt.Prompt:
		opener, closer = "[/", "/]"
	}
	if isRoot {
		opener, closer = "((", "))"
	}
	sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

	c, ok := d.(*dialog.Component)
	if !ok {
		return
	}
	for _, id := range c.DialogIDs() {
		inner, found := c.FindDialog(id)
		if !found {
			continue
		}
		arrow := "-->"
		if id == c.InitialID() {
			arrow = `-- "begins" -->`
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeID, arrow, sanitizeMermaidID(id)))
		writeNode(sb, inner, false)
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
