package reward

import (
	"bytes"
	"fmt"
	"math"

	jsonx "taubench/internal/shared/json"
	"taubench/internal/task"
)

// Kind discriminates the scoring strategy behind a reward.
type Kind string

const (
	KindOutput Kind = "output"
	KindAction Kind = "action"
)

// Info is the evidence behind a reward: *OutputInfo or *ActionInfo.
type Info interface {
	Kind() Kind
	isInfo()
}

// OutputInfo records which expected outputs were found in the agent's
// responses.
type OutputInfo struct {
	ROutputs float64         `json:"r_outputs"`
	Outputs  map[string]bool `json:"outputs"`
}

func (*OutputInfo) Kind() Kind { return KindOutput }
func (*OutputInfo) isInfo()    {}

// ActionInfo records the ground-truth fingerprint the final state was
// compared with. StateDiff is set only when the fingerprints differ.
type ActionInfo struct {
	RActions   float64 `json:"r_actions"`
	GTDataHash string  `json:"gt_data_hash"`
	StateDiff  string  `json:"state_diff,omitempty"`
}

func (*ActionInfo) Kind() Kind { return KindAction }
func (*ActionInfo) isInfo()    {}

// MarshalInfo encodes info with its "kind" discriminant.
func MarshalInfo(info Info) ([]byte, error) {
	switch v := info.(type) {
	case *OutputInfo:
		return jsonx.Marshal(struct {
			Kind Kind `json:"kind"`
			*OutputInfo
		}{KindOutput, v})
	case *ActionInfo:
		return jsonx.Marshal(struct {
			Kind Kind `json:"kind"`
			*ActionInfo
		}{KindAction, v})
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unsupported reward info %T", info)
	}
}

// UnmarshalInfo decodes a tagged reward info. A null payload yields nil.
func UnmarshalInfo(data []byte) (Info, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := jsonx.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode reward info: %w", err)
	}
	var info Info
	switch head.Kind {
	case KindOutput:
		info = &OutputInfo{}
	case KindAction:
		info = &ActionInfo{}
	default:
		return nil, fmt.Errorf("unknown reward info kind %q", head.Kind)
	}
	if err := jsonx.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("decode %s reward info: %w", head.Kind, err)
	}
	return info, nil
}

// InfoFromMap decodes reward info that was read back as a generic map, as
// found in checkpoint rows.
func InfoFromMap(raw any) (Info, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := jsonx.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode reward info: %w", err)
	}
	return UnmarshalInfo(data)
}

// Result is the reward of one finished episode.
type Result struct {
	Reward float64
	Info   Info
	// Actions is the ground-truth sequence the episode was scored against.
	Actions []task.Action
}

type wireResult struct {
	Reward  float64          `json:"reward"`
	Info    jsonx.RawMessage `json:"info"`
	Actions []task.Action    `json:"actions"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	info, err := MarshalInfo(r.Info)
	if err != nil {
		return nil, err
	}
	actions := r.Actions
	if actions == nil {
		actions = []task.Action{}
	}
	return jsonx.Marshal(wireResult{Reward: r.Reward, Info: info, Actions: actions})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var wire wireResult
	if err := jsonx.Unmarshal(data, &wire); err != nil {
		return err
	}
	info, err := UnmarshalInfo(wire.Info)
	if err != nil {
		return err
	}
	*r = Result{Reward: wire.Reward, Info: info, Actions: wire.Actions}
	return nil
}

// Succeeded reports whether reward counts as a pass.
func Succeeded(reward float64) bool {
	return math.Abs(reward-1) <= SuccessTolerance
}

// SuccessTolerance is how far from 1.0 a reward may be and still pass.
const SuccessTolerance = 1e-6
