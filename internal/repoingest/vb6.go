package repoingest

import (
	"regexp"
	"strings"
)

var (
	vb6PropertyLineRe = regexp.MustCompile(`^\s+\w+\s*=\s*.`)
	vb6GUIDLineRe     = regexp.MustCompile(`^\s*\{[\w-]+\}`)
	vb6FormNameRe     = regexp.MustCompile(`Begin VB\.Form\s+(\w+)`)
	vb6CaptionRe      = regexp.MustCompile(`Caption\s*=\s*"([^"]*)"`)
	vb6ControlRe      = regexp.MustCompile(`Begin VB\.(\w+)\s+(\w+)`)
	vb6ProcedureRe    = regexp.MustCompile(`(Private|Public)\s+(Sub|Function|Property)\s+(\w+)`)
	vb6ModuleNameRe   = regexp.MustCompile(`Attribute VB_Name\s*=\s*"([^"]*)"`)
)

const vb6MetadataLineLimit = 20

// filterVB6BinaryContent strips the embedded binary payload VB6 .frm/.dsr/
// .dca/.dsx files carry, keeping only ASCII lines that look like VB6 source
// (VERSION/Begin/End/Attribute/Option/Private/Public declarations, property
// assignments, GUID markers). If that leaves fewer than 3 lines the form is
// mostly binary, so metadata-bearing lines (Caption/Height/Width/Top/Left/
// TabIndex) are pulled instead, capped at vb6MetadataLineLimit.
func filterVB6BinaryContent(content string) string {
	lines := strings.Split(content, "\n")
	filtered := make([]string, 0, len(lines))

	for _, line := range lines {
		ascii := asciiOnly(line)
		trimmed := strings.TrimSpace(ascii)
		if trimmed == "" {
			continue
		}
		switch {
		case strings.HasPrefix(ascii, "VERSION"),
			strings.HasPrefix(ascii, "Begin VB."),
			strings.HasPrefix(ascii, "Begin {"),
			strings.HasPrefix(ascii, "End"),
			strings.HasPrefix(ascii, "Attribute"),
			strings.HasPrefix(ascii, "Option "),
			strings.HasPrefix(ascii, "Private "),
			strings.HasPrefix(ascii, "Public "),
			strings.HasPrefix(ascii, "EndProperty"),
			strings.HasPrefix(ascii, "BeginProperty"),
			vb6PropertyLineRe.MatchString(ascii),
			vb6GUIDLineRe.MatchString(ascii):
			filtered = append(filtered, ascii)
		}
	}

	if len(filtered) >= 3 {
		return strings.Join(filtered, "\n")
	}

	var metadata []string
	for _, line := range lines {
		ascii := asciiOnly(line)
		if strings.TrimSpace(ascii) == "" {
			continue
		}
		if strings.Contains(ascii, "Caption") || strings.Contains(ascii, "Height") ||
			strings.Contains(ascii, "Width") || strings.Contains(ascii, "Top") ||
			strings.Contains(ascii, "Left") || strings.Contains(ascii, "TabIndex") {
			metadata = append(metadata, ascii)
			if len(metadata) >= vb6MetadataLineLimit {
				break
			}
		}
	}
	return strings.Join(metadata, "\n")
}

func asciiOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// vb6FormMetadata is the structural information extracted from a filtered
// .frm form — the header code_indexer.py prepends as FORMULARIO/MODULO/
// TITULO/CONTROLES/PROCEDIMIENTOS, to give semantic search something more
// useful than raw VB6 declarations.
type vb6FormMetadata struct {
	FormName   string
	ModuleName string
	Caption    string
	Controls   []string
	Procedures []string
}

func (m vb6FormMetadata) empty() bool {
	return m.FormName == "" && m.ModuleName == "" && m.Caption == "" && len(m.Controls) == 0 && len(m.Procedures) == 0
}

func extractVB6Metadata(filtered string) vb6FormMetadata {
	var m vb6FormMetadata

	if mm := vb6FormNameRe.FindStringSubmatch(filtered); mm != nil {
		m.FormName = mm[1]
	}
	if mm := vb6CaptionRe.FindStringSubmatch(filtered); mm != nil {
		m.Caption = mm[1]
	}
	if mm := vb6ModuleNameRe.FindStringSubmatch(filtered); mm != nil {
		m.ModuleName = mm[1]
	}
	for _, mm := range vb6ControlRe.FindAllStringSubmatch(filtered, -1) {
		m.Controls = append(m.Controls, mm[1]+":"+mm[2])
	}
	for _, mm := range vb6ProcedureRe.FindAllStringSubmatch(filtered, -1) {
		if len(m.Procedures) >= 20 {
			break
		}
		m.Procedures = append(m.Procedures, mm[1]+" "+mm[2]+" "+mm[3])
	}

	return m
}

// vb6Header renders the FORMULARIO/MODULO/TITULO/CONTROLES/PROCEDIMIENTOS
// block code_indexer.py prepends to a form's content for searchability.
func vb6Header(m vb6FormMetadata) string {
	var parts []string
	if m.FormName != "" {
		parts = append(parts, "FORMULARIO: "+m.FormName)
	}
	if m.ModuleName != "" {
		parts = append(parts, "MODULO: "+m.ModuleName)
	}
	if m.Caption != "" {
		parts = append(parts, "TITULO: "+m.Caption)
	}
	if len(m.Controls) > 0 {
		controls := m.Controls
		if len(controls) > 10 {
			controls = controls[:10]
		}
		parts = append(parts, "CONTROLES: "+strings.Join(controls, ", "))
	}
	if len(m.Procedures) > 0 {
		procs := m.Procedures
		if len(procs) > 5 {
			procs = procs[:5]
		}
		parts = append(parts, "PROCEDIMIENTOS: "+strings.Join(procs, " | "))
	}
	return strings.Join(parts, "\n")
}
