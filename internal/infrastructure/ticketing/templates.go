package ticketing

import (
	"embed"
	"fmt"
	"sync"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

type templateFile struct {
	Platform itsm.Platform          `yaml:"platform"`
	Mappings []itsm.TemplateMapping `yaml:"mappings"`
}

// TemplateProvider serves the built-in default field mappings embedded in the
// binary. Templates are parsed once on first use.
type TemplateProvider struct {
	once      sync.Once
	templates map[itsm.Platform][]itsm.TemplateMapping
	err       error
}

// NewTemplateProvider creates a provider over the embedded templates
func NewTemplateProvider() *TemplateProvider {
	return &TemplateProvider{}
}

// DefaultMappings returns a copy of the platform's template
func (p *TemplateProvider) DefaultMappings(platform itsm.Platform) ([]itsm.TemplateMapping, error) {
	p.once.Do(p.load)
	if p.err != nil {
		return nil, p.err
	}
	rows, ok := p.templates[platform]
	if !ok {
		return nil, itsm.ErrNoDefaultTemplate
	}
	return append([]itsm.TemplateMapping(nil), rows...), nil
}

func (p *TemplateProvider) load() {
	p.templates = make(map[itsm.Platform][]itsm.TemplateMapping)

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		p.err = fmt.Errorf("ticketing: failed to read templates: %w", err)
		return
	}
	for _, entry := range entries {
		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			p.err = fmt.Errorf("ticketing: failed to read template %s: %w", entry.Name(), err)
			return
		}
		var file templateFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			p.err = fmt.Errorf("ticketing: invalid template %s: %w", entry.Name(), err)
			return
		}
		if !file.Platform.IsValid() {
			p.err = fmt.Errorf("ticketing: template %s: %w", entry.Name(), itsm.ErrInvalidPlatform)
			return
		}
		p.templates[file.Platform] = file.Mappings
	}
}

var _ itsm.MappingTemplateProvider = (*TemplateProvider)(nil)
