package dag

import (
	"bytes"
	stderrors "errors"
	"io"
	"maps"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/flowkit/errors"
)

// TaskConfig configures one step. Config is resolved against the step's
// schema; Inputs supplies values for inputs with no upstream producer.
type TaskConfig struct {
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Inputs map[string]any `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// RunConfig configures a run. Tasks is keyed by step handle; steps inside
// a composite use dotted handles such as "composite.inner".
type RunConfig struct {
	Tasks map[string]TaskConfig `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Tags  map[string]string     `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Merge returns rc overlaid with over. Values in over win key by key.
func (rc RunConfig) Merge(over RunConfig) RunConfig {
	out := RunConfig{
		Tasks: make(map[string]TaskConfig, len(rc.Tasks)+len(over.Tasks)),
		Tags:  maps.Clone(rc.Tags),
	}
	for handle, tc := range rc.Tasks {
		out.Tasks[handle] = TaskConfig{Config: maps.Clone(tc.Config), Inputs: maps.Clone(tc.Inputs)}
	}
	for handle, tc := range over.Tasks {
		cur := out.Tasks[handle]
		cur.Config = overlay(cur.Config, tc.Config)
		cur.Inputs = overlay(cur.Inputs, tc.Inputs)
		out.Tasks[handle] = cur
	}
	if len(over.Tags) > 0 {
		if out.Tags == nil {
			out.Tags = make(map[string]string, len(over.Tags))
		}
		maps.Copy(out.Tags, over.Tags)
	}
	return out
}

// Task returns the configuration for handle.
func (rc RunConfig) Task(handle string) TaskConfig {
	return rc.Tasks[handle]
}

func overlay(base, over map[string]any) map[string]any {
	if len(over) == 0 {
		return base
	}
	if base == nil {
		base = make(map[string]any, len(over))
	}
	maps.Copy(base, over)
	return base
}

// ParseRunConfig reads a run configuration from YAML.
func ParseRunConfig(data []byte) (RunConfig, error) {
	var rc RunConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rc); err != nil && !stderrors.Is(err, io.EOF) {
		return RunConfig{}, errors.Schema("run config: %v", err).WithCause(err)
	}
	return rc, nil
}
