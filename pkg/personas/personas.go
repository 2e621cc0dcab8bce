// Package personas loads canned doctor utterances used when the AI
// provider is unavailable. Replies stay in the persona's voice so a
// provider outage degrades the conversation instead of breaking it.
package personas

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/medsim-inc/medsim-engine/pkg/models"
)

// file is the on-disk shape of the personas data file.
type file struct {
	Fallbacks map[string][]string `yaml:"fallbacks"`
	Default   []string            `yaml:"default"`
}

// Catalog holds fallback utterances keyed by personality type.
type Catalog struct {
	fallbacks map[string][]string
	fallback  []string
}

// Load reads the personas data file. Every personality type must have at
// least one utterance, and a default list is required for unknown types.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse personas file: %w", err)
	}

	if len(f.Default) == 0 {
		return nil, fmt.Errorf("personas file %s has no default fallbacks", path)
	}
	for _, personality := range []string{
		models.PersonalityDemanding,
		models.PersonalityQuiet,
		models.PersonalityAggressive,
		models.PersonalityRational,
		models.PersonalityEmpathetic,
	} {
		if len(f.Fallbacks[personality]) == 0 {
			return nil, fmt.Errorf("personas file %s has no fallbacks for %q", path, personality)
		}
	}

	return &Catalog{fallbacks: f.Fallbacks, fallback: f.Default}, nil
}

// Fallback picks a random canned utterance for the personality type.
// Unknown types fall through to the default list.
func (c *Catalog) Fallback(personalityType string) string {
	utterances := c.fallbacks[personalityType]
	if len(utterances) == 0 {
		utterances = c.fallback
	}
	return utterances[rand.Intn(len(utterances))]
}
