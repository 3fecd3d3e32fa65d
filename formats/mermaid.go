package formats

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/schemabounce/waterfall-bridge/hierarchy"
	"github.com/schemabounce/waterfall-bridge/types"
)

// Mermaid diagram types.
const (
	DiagramFlowchart = "flowchart"
	DiagramGraph     = "graph"
	DiagramMindmap   = "mindmap"
)

// DiagramTypes lists the supported diagram types.
var DiagramTypes = []string{DiagramFlowchart, DiagramGraph, DiagramMindmap}

const maxLabelLength = 100

var (
	nodePattern      = regexp.MustCompile(`^(\w+)\["([^"]+)"\]`)
	flowEdgePattern  = regexp.MustCompile(`^(\w+)\s*-->\s*(\w+)`)
	graphEdgePattern = regexp.MustCompile(`^(\w+)\s*---\s*(\w+)`)

	labelEscaper   = strings.NewReplacer(`"`, "'", "\r\n", " ", "\n", " ", "\r", " ", "<", "&lt;", ">", "&gt;")
	labelUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">")
)

// Mermaid renders records as a diagram: nodes are records and edges are
// parent pointers. Decoding recovers identities, labels and parent pointers
// only; every other field is lost.
type Mermaid struct{}

func (Mermaid) Name() string        { return "mermaid" }
func (Mermaid) ContentType() string { return "text/plain" }
func (Mermaid) Extension() string   { return "mmd" }

// AcceptsExtension allows .mermaid uploads as well.
func (Mermaid) AcceptsExtension(ext string) bool {
	return ext == "mmd" || ext == "mermaid"
}

func (Mermaid) Encode(records types.Collection, opts EncodeOptions) ([]byte, error) {
	diagram := opts.DiagramType
	if diagram == "" {
		diagram = DiagramFlowchart
	}

	parentField := opts.ParentField
	if parentField == "" {
		parentField = hierarchy.DetectParentField(records)
	}

	var lines []string
	switch diagram {
	case DiagramFlowchart:
		lines = append(lines, "%%{init: {'theme':'base'}}%%", "flowchart TD")
	case DiagramGraph:
		lines = append(lines, "graph TD")
	case DiagramMindmap:
		lines = append(lines, "mindmap")
	default:
		return nil, fmt.Errorf("invalid diagram_type %q: must be one of %s", diagram, strings.Join(DiagramTypes, ", "))
	}
	lines = append(lines, mermaidMetadata(records, opts, diagram, parentField != "")...)
	lines = append(lines, "")

	switch diagram {
	case DiagramFlowchart:
		lines = append(lines, flowchartBody(records, parentField, opts.ServiceURL)...)
	case DiagramGraph:
		lines = append(lines, graphBody(records, parentField)...)
	case DiagramMindmap:
		lines = append(lines, mindmapBody(records, parentField)...)
	}

	return []byte(strings.Join(lines, "\n") + "\n"), nil
}

func mermaidMetadata(records types.Collection, opts EncodeOptions, diagram string, isTree bool) []string {
	resource := opts.ResourceType
	if resource == "" {
		resource = "unknown"
	}
	return []string{
		"%% Metadata",
		"%% export_date: " + opts.now().UTC().Format(time.RFC3339),
		"%% resource_type: " + resource,
		"%% total_nodes: " + strconv.Itoa(len(records)),
		"%% service_url: " + opts.ServiceURL,
		"%% diagram_type: " + diagram,
		"%% is_tree: " + strconv.FormatBool(isTree),
	}
}

func flowchartBody(records types.Collection, parentField, serviceURL string) []string {
	var lines []string
	for _, record := range records {
		label := sanitizeLabel(recordLabel(record)) + "<br/>" + types.FieldOriginalID + ": " + record.Identity()
		if status, ok := record["status"]; ok && status != nil {
			label += "<br/>status: " + sanitizeLabel(fmt.Sprint(status))
		}
		lines = append(lines, fmt.Sprintf(`    %s["%s"]`, nodeID(record.Identity()), label))
	}

	lines = append(lines, "")
	lines = append(lines, edges(records, parentField, "-->")...)

	if serviceURL != "" {
		lines = append(lines, "")
		for _, record := range records {
			lines = append(lines, fmt.Sprintf(`    click %s "%s/%s"`,
				nodeID(record.Identity()), strings.TrimSuffix(serviceURL, "/"), record.Identity()))
		}
	}
	return lines
}

func graphBody(records types.Collection, parentField string) []string {
	var lines []string
	for _, record := range records {
		lines = append(lines, fmt.Sprintf(`    %s["%s"]`, nodeID(record.Identity()), sanitizeLabel(recordLabel(record))))
	}
	lines = append(lines, "")
	return append(lines, edges(records, parentField, "---")...)
}

// edges links parents to children, or chains records in order when there is
// no hierarchy.
func edges(records types.Collection, parentField, arrow string) []string {
	var lines []string
	if parentField != "" {
		for _, record := range records {
			if parent := record.Ref(parentField); parent != "" {
				lines = append(lines, fmt.Sprintf("    %s %s %s", nodeID(parent), arrow, nodeID(record.Identity())))
			}
		}
		return lines
	}
	for i := 0; i+1 < len(records); i++ {
		lines = append(lines, fmt.Sprintf("    %s %s %s", nodeID(records[i].Identity()), arrow, nodeID(records[i+1].Identity())))
	}
	return lines
}

type mindmapFrame struct {
	node  types.Record
	depth int
}

func mindmapBody(records types.Collection, parentField string) []string {
	if parentField == "" || len(records) == 0 {
		lines := []string{"  root((Data))"}
		for _, record := range records {
			lines = append(lines, "    "+sanitizeLabel(recordLabel(record)))
		}
		return lines
	}

	var lines []string
	roots := hierarchy.BuildTree(records, parentField)
	stack := make([]mindmapFrame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, mindmapFrame{node: roots[i], depth: 2})
	}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		label := sanitizeLabel(recordLabel(frame.node))
		prefix := strings.Repeat("  ", frame.depth)
		if frame.depth == 2 {
			lines = append(lines, prefix+"root(("+label+"))")
		} else {
			lines = append(lines, prefix+label)
		}

		children, _ := types.AsCollection(frame.node[types.FieldChildren])
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, mindmapFrame{node: children[i], depth: frame.depth + 1})
		}
	}
	return lines
}

func recordLabel(record types.Record) string {
	for _, field := range []string{"name", "title", "label", "description"} {
		if v, ok := record[field]; ok && !types.IsEmpty(v) && v != false {
			return fmt.Sprint(v)
		}
	}
	if id := record.Identity(); id != "" {
		return id
	}
	return "Unknown"
}

func sanitizeLabel(text string) string {
	text = labelEscaper.Replace(text)
	if runes := []rune(text); len(runes) > maxLabelLength {
		text = string(runes[:maxLabelLength])
	}
	return text
}

func nodeID(id string) string {
	return "node_" + strings.ReplaceAll(id, "-", "_")
}

func idFromNodeID(node string) string {
	return strings.ReplaceAll(strings.TrimPrefix(node, "node_"), "_", "-")
}

func (Mermaid) Decode(data []byte) (types.Collection, error) {
	lines := strings.Split(string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))), "\n")

	diagram := detectDiagramType(lines)
	if diagram == "" {
		return nil, malformed("mermaid", errors.New("unsupported or missing diagram type"))
	}

	var records types.Collection
	switch diagram {
	case DiagramFlowchart:
		records = decodeNodesAndEdges(lines, flowEdgePattern, true)
	case DiagramGraph:
		records = decodeNodesAndEdges(lines, graphEdgePattern, false)
	case DiagramMindmap:
		records = decodeMindmap(lines)
	}
	if len(records) == 0 {
		return nil, malformed("mermaid", errors.New("no nodes found in diagram"))
	}
	return records, nil
}

func detectDiagramType(lines []string) string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "%%"):
			continue
		case strings.HasPrefix(line, "flowchart"):
			return DiagramFlowchart
		case strings.HasPrefix(line, "graph"):
			return DiagramGraph
		case line == "mindmap":
			return DiagramMindmap
		}
	}
	return ""
}

func parseMetadata(lines []string) map[string]string {
	meta := make(map[string]string)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "%%") || strings.HasPrefix(line, "%%{") {
			continue
		}
		content := strings.TrimSpace(strings.TrimLeft(line, "%"))
		if key, value, ok := strings.Cut(content, ":"); ok {
			meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return meta
}

// decodeNodesAndEdges reads flowchart and graph diagrams. Edges become
// parent pointers only when the metadata marks the diagram as a tree; roots
// of a tree get a null parent.
func decodeNodesAndEdges(lines []string, edgePattern *regexp.Regexp, labelFields bool) types.Collection {
	isTree := strings.EqualFold(parseMetadata(lines)["is_tree"], "true")

	var (
		order []string
		nodes = make(map[string]types.Record)
		links [][2]string
	)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") || strings.HasPrefix(line, "flowchart") ||
			strings.HasPrefix(line, "graph") || strings.HasPrefix(line, "click") {
			continue
		}
		if m := edgePattern.FindStringSubmatch(line); m != nil {
			links = append(links, [2]string{m[1], m[2]})
			continue
		}
		m := nodePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		record := decodeNode(m[1], m[2], labelFields)
		if _, seen := nodes[m[1]]; !seen {
			order = append(order, m[1])
		}
		nodes[m[1]] = record
	}

	if isTree {
		// Roots carry an explicit null so the parent field is visible on
		// every record, whichever node comes first.
		for _, record := range nodes {
			record[types.FieldParentID] = nil
		}
		for _, link := range links {
			parent, okParent := nodes[link[0]]
			child, okChild := nodes[link[1]]
			if okParent && okChild {
				child[types.FieldParentID] = parent.Identity()
			}
		}
	}

	records := make(types.Collection, 0, len(order))
	for _, id := range order {
		records = append(records, nodes[id])
	}
	return records
}

func decodeNode(node, content string, labelFields bool) types.Record {
	if !labelFields {
		return types.Record{
			types.FieldOriginalID: idFromNodeID(node),
			"name":                labelUnescaper.Replace(content),
		}
	}

	parts := strings.Split(content, "<br/>")
	record := types.Record{"name": labelUnescaper.Replace(parts[0])}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		record[strings.TrimSpace(key)] = labelUnescaper.Replace(strings.TrimSpace(value))
	}
	if types.IDString(record[types.FieldOriginalID]) == "" {
		record[types.FieldOriginalID] = idFromNodeID(node)
	}
	return record
}

type mindmapLevel struct {
	indent int
	id     string
}

func decodeMindmap(lines []string) types.Collection {
	var (
		records types.Collection
		stack   []mindmapLevel
	)
	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") || trimmed == "mindmap" {
			continue
		}

		label := trimmed
		if strings.HasPrefix(label, "root((") && strings.HasSuffix(label, "))") {
			label = label[len("root((") : len(label)-2]
		} else if strings.HasPrefix(label, "((") && strings.HasSuffix(label, "))") {
			label = label[2 : len(label)-2]
		}
		if label == "" {
			continue
		}

		indent := len(raw) - len(strings.TrimLeft(raw, " \t"))
		id := "node-" + strconv.Itoa(len(records)+1)
		record := types.Record{types.FieldOriginalID: id, "name": labelUnescaper.Replace(label)}

		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		record[types.FieldParentID] = nil
		if len(stack) > 0 {
			record[types.FieldParentID] = stack[len(stack)-1].id
		}

		records = append(records, record)
		stack = append(stack, mindmapLevel{indent: indent, id: id})
	}
	return records
}
