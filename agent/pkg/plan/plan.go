// Package plan defines the typed step sequence the planner produces and
// the executor interprets. A Step is a closed sum over the tool kinds;
// adding a kind means touching the Op interface, the JSON codec, and every
// exhaustive switch, which is the point.
package plan

import (
	"encoding/json"
	"fmt"
)

// Tool names as they appear on the wire.
const (
	ToolDataFetch         = "data_fetch"
	ToolDescribeTable     = "describe_table"
	ToolTransform         = "transform"
	ToolListBusinessLines = "list_business_lines"
	ToolInformUser        = "inform_user"
)

// Op is the kind-specific payload of a step. It is a sealed interface:
// exactly one implementation per tool kind.
type Op interface {
	Tool() string
	isOp()
}

// FetchOp fetches a metric into a named workspace table.
type FetchOp struct {
	Metric             string   `json:"metric"`
	Entities           []string `json:"entities"`
	DateDescription    string   `json:"date_description"`
	RowGranularity     []string `json:"row_granularity"`
	ColGranularity     []string `json:"col_granularity,omitempty"`
	Business           string   `json:"business,omitempty"`
	SubBusiness        string   `json:"subbusiness,omitempty"`
	Regions            []string `json:"region,omitempty"`
	Countries          []string `json:"country,omitempty"`
	BalanceType        string   `json:"balance_type,omitempty"`
	FinOrExec          []string `json:"fin_or_exec,omitempty"`
	PrimaryOrSecondary []string `json:"primary_or_secondary,omitempty"`
	OutputVariable     string   `json:"output_variable"`
}

func (*FetchOp) Tool() string { return ToolDataFetch }
func (*FetchOp) isOp()        {}

// fetchOpWire tolerates the older single-dimension "granularity" field the
// planner occasionally still emits.
type fetchOpWire FetchOp

type fetchOpCompat struct {
	fetchOpWire
	Granularity string `json:"granularity,omitempty"`
}

// UnmarshalJSON accepts both row_granularity lists and the legacy scalar
// granularity field.
func (op *FetchOp) UnmarshalJSON(b []byte) error {
	var compat fetchOpCompat
	if err := json.Unmarshal(b, &compat); err != nil {
		return err
	}
	*op = FetchOp(compat.fetchOpWire)
	if len(op.RowGranularity) == 0 && compat.Granularity != "" {
		op.RowGranularity = []string{compat.Granularity}
	}
	return nil
}

// DescribeOp describes the schema of a workspace table.
type DescribeOp struct {
	TableName string `json:"table_name"`
}

func (*DescribeOp) Tool() string { return ToolDescribeTable }
func (*DescribeOp) isOp()        {}

// TransformOp evaluates a transform expression against the workspace.
type TransformOp struct {
	Code string `json:"code"`
}

func (*TransformOp) Tool() string { return ToolTransform }
func (*TransformOp) isOp()        {}

// ListBusinessLinesOp returns the valid business and sub-business lines.
// It takes no parameters.
type ListBusinessLinesOp struct{}

func (*ListBusinessLinesOp) Tool() string { return ToolListBusinessLines }
func (*ListBusinessLinesOp) isOp()        {}

// InformOp sends a terminal message directly to the user, bypassing any
// remaining steps and the synthesizer.
type InformOp struct {
	Message string `json:"message"`
}

func (*InformOp) Tool() string { return ToolInformUser }
func (*InformOp) isOp()        {}

// Step is one unit of a plan: a tool kind with a human-readable summary
// and kind-specific parameters.
type Step struct {
	Summary string
	Op      Op
}

type stepWire struct {
	Tool       string          `json:"tool_name"`
	Summary    string          `json:"summary"`
	Parameters json.RawMessage `json:"parameters"`
}

// MarshalJSON implements json.Marshaler.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.Op == nil {
		return nil, fmt.Errorf("step %q has no operation", s.Summary)
	}
	params, err := json.Marshal(s.Op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stepWire{Tool: s.Op.Tool(), Summary: s.Summary, Parameters: params})
}

// UnmarshalJSON implements json.Unmarshaler, dispatching on tool_name.
func (s *Step) UnmarshalJSON(b []byte) error {
	var wire stepWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	var op Op
	switch wire.Tool {
	case ToolDataFetch:
		op = &FetchOp{}
	case ToolDescribeTable:
		op = &DescribeOp{}
	case ToolTransform:
		op = &TransformOp{}
	case ToolListBusinessLines:
		op = &ListBusinessLinesOp{}
	case ToolInformUser:
		op = &InformOp{}
	default:
		return fmt.Errorf("unknown tool_name %q", wire.Tool)
	}
	if len(wire.Parameters) > 0 {
		if err := json.Unmarshal(wire.Parameters, op); err != nil {
			return fmt.Errorf("invalid parameters for %s: %w", wire.Tool, err)
		}
	}
	s.Summary = wire.Summary
	s.Op = op
	return nil
}

// Plan is an ordered sequence of steps.
type Plan struct {
	Steps []Step `json:"plan"`
}

// Parse decodes a plan from JSON and checks it is non-empty.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	for i, step := range p.Steps {
		if step.Op == nil {
			return nil, fmt.Errorf("plan step %d has no operation", i)
		}
	}
	return &p, nil
}
