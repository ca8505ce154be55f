package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/client"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

// OutputFormat specifies the output format for CLI commands
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// PrintSegments outputs segments in the specified format
func PrintSegments(w io.Writer, segs []store.Segment, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]store.Segment{"segments": segs})
	case FormatYAML:
		return printYAML(w, map[string][]store.Segment{"segments": segs})
	case FormatTable:
		return printSegmentTable(w, segs)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintSegment outputs a single segment in the specified format
func PrintSegment(w io.Writer, seg *store.Segment, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, seg)
	case FormatYAML:
		return printYAML(w, seg)
	case FormatTable:
		if err := printSegmentTable(w, []store.Segment{*seg}); err != nil {
			return err
		}
		return printConditionTable(w, seg)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintFields outputs the field catalog
func PrintFields(w io.Writer, fields []client.Field, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, map[string][]client.Field{"fields": fields})
	case FormatYAML:
		return printYAML(w, map[string][]client.Field{"fields": fields})
	case FormatTable:
		table := tablewriter.NewWriter(w)
		table.Header("Field", "Label", "Type", "Operators", "Options")
		for _, f := range fields {
			ops := make([]string, len(f.Operators))
			for i, op := range f.Operators {
				ops[i] = string(op)
			}
			table.Append(f.ID, f.Label, string(f.Type), strings.Join(ops, ", "), strings.Join(f.Options, ", "))
		}
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintValue writes v as JSON or YAML. Table output is not supported.
func PrintValue(w io.Writer, v any, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, v)
	case FormatYAML:
		return printYAML(w, v)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// printYAML goes through JSON first so YAML keys match the API field names.
func printYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var plain any
	if err := yaml.Unmarshal(raw, &plain); err != nil {
		return err
	}
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(plain)
}

func printSegmentTable(w io.Writer, segs []store.Segment) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Match", "Conditions", "Clients", "Active", "System", "Tags", "Updated At")

	for _, seg := range segs {
		name := seg.Name
		if len([]rune(name)) > 40 {
			name = string([]rune(name)[:37]) + "..."
		}
		count := strconv.Itoa(seg.ClientCount)
		if seg.CountApproximate {
			count = "~" + count
		}
		table.Append(
			seg.ID,
			name,
			string(seg.Filter.MatchType),
			strconv.Itoa(len(seg.Filter.Conditions)),
			count,
			strconv.FormatBool(seg.IsActive),
			strconv.FormatBool(seg.IsSystem),
			strings.Join(seg.Tags, ", "),
			seg.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}

	return table.Render()
}

func printConditionTable(w io.Writer, seg *store.Segment) error {
	table := tablewriter.NewWriter(w)
	table.Header("Condition", "Field", "Operator", "Value")
	for _, c := range seg.Filter.Conditions {
		value := "-"
		if c.Value != nil {
			if raw, err := json.Marshal(c.Value); err == nil {
				value = string(raw)
			}
		}
		table.Append(c.ID, c.Field, string(c.Operator), value)
	}
	return table.Render()
}
