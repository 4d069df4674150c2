// Package plan loads planner output into a board. The planner itself is an
// external collaborator; this package only validates and normalizes what it
// produced.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/openvibe/vibeboard/pkg/models"
)

// planSchema validates the shape of a plan document before any task is built.
// Dependency resolution and acyclicity are checked separately: the schema
// only guards structure.
const planSchema = `{
	"type": "object",
	"required": ["tasks"],
	"properties": {
		"goal": {"type": "string"},
		"tasks": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "title", "actor"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"title": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"actor": {"type": "string", "enum": ["planner", "researcher", "analyst", "coder", "composer", "writer", "custom"]},
					"depends_on": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("plan.json", planSchema)

// Document is the raw plan as produced by the planner.
type Document struct {
	Goal  string      `yaml:"goal" json:"goal"`
	Tasks []TaskEntry `yaml:"tasks" json:"tasks"`
}

// TaskEntry is one planned task. Dependencies reference other entries by name.
type TaskEntry struct {
	Name        string   `yaml:"name" json:"name"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Actor       string   `yaml:"actor" json:"actor"`
	DependsOn   []string `yaml:"depends_on" json:"depends_on"`
}

// LoadFile reads a plan from a YAML or JSON file and builds a board with all
// tasks pending.
func LoadFile(path string) (*models.Board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Load(raw, filepath.Ext(path))
}

// Load parses and validates plan bytes. ext selects the format; anything
// other than ".json" is treated as YAML.
func Load(raw []byte, ext string) (*models.Board, error) {
	var doc Document
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse plan: %w", err)
		}
	}

	if err := validate(doc); err != nil {
		return nil, err
	}
	return build(doc)
}

// validate round-trips the document through JSON and checks it against the
// plan schema, so YAML and JSON plans get identical validation.
func validate(doc Document) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode plan for validation: %w", err)
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("decode plan for validation: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	return nil
}

// build assigns stable ids and resolves name references into id references.
func build(doc Document) (*models.Board, error) {
	idByName := make(map[string]string, len(doc.Tasks))
	for _, entry := range doc.Tasks {
		if _, dup := idByName[entry.Name]; dup {
			return nil, fmt.Errorf("duplicate task name %q", entry.Name)
		}
		idByName[entry.Name] = uuid.New().String()[:8]
	}

	board := &models.Board{
		ID:        uuid.New().String()[:8],
		Goal:      doc.Goal,
		CreatedAt: time.Now(),
	}
	for _, entry := range doc.Tasks {
		task := &models.Task{
			ID:          idByName[entry.Name],
			Title:       entry.Title,
			Description: entry.Description,
			ActorType:   models.ActorType(entry.Actor),
			Status:      models.TaskStatusPending,
		}
		for _, depName := range entry.DependsOn {
			depID, ok := idByName[depName]
			if !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", entry.Name, depName)
			}
			task.DependsOn = append(task.DependsOn, depID)
		}
		board.Tasks = append(board.Tasks, task)
	}
	return board, nil
}
