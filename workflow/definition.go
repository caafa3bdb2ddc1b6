package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type (
	// Definition is a declarative workflow description, typically authored in
	// YAML and instantiated through the orchestrator.
	Definition struct {
		// Name labels the workflow. Required.
		Name string `yaml:"name"`
		// Description provides optional human-readable context.
		Description string `yaml:"description,omitempty"`
		// Steps are instantiated in order.
		Steps []StepDefinition `yaml:"steps"`
	}

	// StepDefinition describes one step of a declarative workflow.
	StepDefinition struct {
		// Agent names the agent to invoke. Required.
		Agent string `yaml:"agent"`
		// Input is the optional prompt for the agent.
		Input string `yaml:"input,omitempty"`
		// Thread pins the step to an existing conversation thread. A fresh
		// thread is generated when empty.
		Thread string `yaml:"thread,omitempty"`
	}
)

// ParseDefinition decodes and validates a YAML workflow definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode workflow definition: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("workflow definition: name is required")
	}
	for i, s := range def.Steps {
		if s.Agent == "" {
			return nil, fmt.Errorf("workflow definition: step %d: agent is required", i)
		}
	}
	return &def, nil
}

// LoadDefinition reads and parses a YAML workflow definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}
	return ParseDefinition(data)
}

// CreateWorkflowFromDefinition instantiates a pending workflow from a
// declarative definition.
func (o *Orchestrator) CreateWorkflowFromDefinition(def *Definition) *Workflow {
	steps := make([]StepInput, len(def.Steps))
	for i, s := range def.Steps {
		steps[i] = StepInput{AgentID: s.Agent, Input: s.Input, ThreadID: s.Thread}
	}
	return o.CreateWorkflow(def.Name, def.Description, steps)
}
