/*
	Package process reads pipeline definitions ("process lists"): the ordered
	plugins of a run with their parameters and the datasets each one reads and
	writes.

	A process list is a JSON document:

	{
		"version": "1.0.0",
		"plugins": [
			{"name": "median_filter", "id": "denoise", "params": {"kernel_size": 3},
			 "in_datasets": ["tomo"], "out_datasets": ["tomo"]}
		]
	}

	Empty in_datasets select every dataset available at that point of the run;
	empty out_datasets reuse the input names.
*/
package process

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/blang/semver"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/tomoflow/tomo"
)

// Version is the process list format written by this package.  Lists with the
// same major version and no newer minor version can be read.
const Version = "1.0.0"

var formatVersion = semver.MustParse(Version)

const schemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["version", "plugins"],
	"properties": {
		"version": {"type": "string"},
		"plugins": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"id": {"type": "string"},
					"active": {"type": "boolean"},
					"params": {"type": "object"},
					"in_datasets": {"type": "array", "items": {"type": "string", "minLength": 1}},
					"out_datasets": {"type": "array", "items": {"type": "string", "minLength": 1}},
					"remove": {"type": "array", "items": {"type": "string", "minLength": 1}}
				},
				"additionalProperties": false
			}
		}
	}
}`

var schema = jsonschema.MustCompileString("process_list.json", schemaJSON)

// Entry is one plugin of a process list.
type Entry struct {
	Name        string                 `json:"name"`
	ID          string                 `json:"id,omitempty"`
	Active      *bool                  `json:"active,omitempty"`
	Params      map[string]interface{} `json:"params,omitempty"`
	InDatasets  []string               `json:"in_datasets,omitempty"`
	OutDatasets []string               `json:"out_datasets,omitempty"`

	// Remove names output datasets deleted once the plugin has run.
	Remove []string `json:"remove,omitempty"`
}

// Label identifies the entry in messages.
func (e Entry) Label() string {
	if e.ID != "" && e.ID != e.Name {
		return fmt.Sprintf("%s (%s)", e.ID, e.Name)
	}
	return e.Name
}

// IsActive returns false for entries switched off in the list.
func (e Entry) IsActive() bool {
	return e.Active == nil || *e.Active
}

// List is a parsed process list.
type List struct {
	Version string  `json:"version"`
	Plugins []Entry `json:"plugins"`
}

// Parse validates and decodes a process list.
func Parse(data []byte) (*List, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("process list is not valid JSON: %v", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("invalid process list: %v", err)
	}
	var l List
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	version, err := semver.Parse(l.Version)
	if err != nil {
		return nil, fmt.Errorf("bad process list version %q: %v", l.Version, err)
	}
	if version.Major != formatVersion.Major || version.GT(formatVersion) {
		return nil, fmt.Errorf("process list version %s cannot be read, supported version is %s", version, formatVersion)
	}
	return &l, nil
}

// Load reads a process list file.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read process list %q: %v", path, err)
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	tomo.Infof("Loaded process list %q with %d plugins\n", path, len(l.Plugins))
	return l, nil
}

// Marshal returns the list as indented JSON.
func (l *List) Marshal() ([]byte, error) {
	if l.Version == "" {
		l.Version = Version
	}
	return json.MarshalIndent(l, "", "  ")
}

// Save writes the list to path.
func (l *List) Save(path string) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
