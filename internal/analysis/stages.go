package analysis

import (
	_ "embed"
	"fmt"

	"github.com/irfndi/coinsight-go/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed stages.yaml
var defaultStages []byte

// ParseStages decodes an ordered stage table.
func ParseStages(data []byte) ([]models.StageDescriptor, error) {
	var file struct {
		Stages []models.StageDescriptor `yaml:"stages"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse stage table: %w", err)
	}
	if len(file.Stages) == 0 {
		return nil, fmt.Errorf("stage table is empty")
	}
	for i, s := range file.Stages {
		if s.Label == "" {
			return nil, fmt.Errorf("stage %d has no label", i)
		}
	}
	return file.Stages, nil
}

// DefaultStages returns a fresh copy of the built-in ten stage sequence.
func DefaultStages() []models.StageDescriptor {
	stages, err := ParseStages(defaultStages)
	if err != nil {
		panic(err)
	}
	return stages
}
