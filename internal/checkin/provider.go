package checkin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileProvider reads a batch of check-ins from YAML. The file holds either a
// `checkins:` list or a top-level list.
type FileProvider struct {
	Path string
	// Actor fills in entries that name no actor.
	Actor string
}

type checkInFile struct {
	CheckIns []CheckIn `yaml:"checkins"`
}

func (p *FileProvider) Load() ([]CheckIn, error) {
	if p.Path == "" {
		p.Path = filepath.Join("okrs", "checkins.yml")
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read check-ins: %w", err)
	}
	return p.parse(data)
}

func (p *FileProvider) parse(data []byte) ([]CheckIn, error) {
	var file checkInFile
	if err := yaml.Unmarshal(data, &file); err == nil && file.CheckIns != nil {
		return p.fill(file.CheckIns)
	}

	var list []CheckIn
	if err := yaml.Unmarshal(data, &list); err == nil && list != nil {
		return p.fill(list)
	}

	return nil, fmt.Errorf("check-in file must contain `checkins:` list or a top-level list")
}

func (p *FileProvider) fill(checkIns []CheckIn) ([]CheckIn, error) {
	out := make([]CheckIn, 0, len(checkIns))
	for i, ci := range checkIns {
		ci.KRID = strings.TrimSpace(ci.KRID)
		if ci.KRID == "" {
			return nil, fmt.Errorf("checkins[%d]: kr_id is required", i)
		}
		if ci.Value < 0 {
			return nil, fmt.Errorf("checkins[%d]: value must not be negative", i)
		}
		if strings.TrimSpace(ci.Actor) == "" {
			ci.Actor = p.Actor
		}
		out = append(out, ci)
	}
	return out, nil
}
