package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matzehuels/chainsat/pkg/version"
)

// Message asks a worker to create, refresh or relate one package.
//
// The JSON form is the wire envelope stored in a stream entry's data
// field.
type Message struct {
	Ecosystem     version.Ecosystem `json:"node_type"`
	Package       string            `json:"package"`
	Vendor        string            `json:"vendor,omitempty"`
	RepositoryURL string            `json:"repository_url,omitempty"`
	Constraints   string            `json:"constraints"`
	// ParentID is the RequirementFile id or Version element id the
	// Requires edge starts from. Empty for an init_package root.
	ParentID      string    `json:"parent_id,omitempty"`
	ParentVersion string    `json:"parent_version,omitempty"`
	Refresh       bool      `json:"refresh"`
	Moment        time.Time `json:"moment"`
}

// Encode returns the envelope JSON.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses an envelope and checks its required fields.
func Decode(raw string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Package == "" {
		return Message{}, fmt.Errorf("decode message: missing package")
	}
	if _, err := version.For(m.Ecosystem); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
