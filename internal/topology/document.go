package topology

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/zzenonn/zplace/internal/domain"
)

// Document is the YAML form of a pool map.
//
//	version: 7
//	domains:
//	  - type: node
//	    id: 0
//	    targets:
//	      - {id: 0}
//	      - {id: 1, status: down, fseq: 5}
type Document struct {
	Version uint32        `yaml:"version"`
	Domains []DomainEntry `yaml:"domains"`
}

type DomainEntry struct {
	Type      string        `yaml:"type"`
	ID        uint32        `yaml:"id"`
	Status    string        `yaml:"status,omitempty"`
	Fseq      uint32        `yaml:"fseq,omitempty"`
	InVersion uint32        `yaml:"in_ver,omitempty"`
	Version   uint32        `yaml:"ver,omitempty"`
	Children  []DomainEntry `yaml:"children,omitempty"`
	Targets   []TargetEntry `yaml:"targets,omitempty"`
}

type TargetEntry struct {
	ID        uint32 `yaml:"id"`
	Rank      uint32 `yaml:"rank,omitempty"`
	Status    string `yaml:"status,omitempty"`
	Fseq      uint32 `yaml:"fseq,omitempty"`
	InVersion uint32 `yaml:"in_ver,omitempty"`
	Version   uint32 `yaml:"ver,omitempty"`
}

// Parse decodes a YAML document and builds the map it describes.
func Parse(data []byte) (*Map, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode topology document: %w", err)
	}
	return doc.Build()
}

// Build converts the document into a Map.
func (doc *Document) Build() (*Map, error) {
	root := DomainSpec{Type: domain.CompRoot}
	for _, e := range doc.Domains {
		spec, err := e.spec()
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, spec)
	}
	return Build(doc.Version, root)
}

func (e *DomainEntry) spec() (DomainSpec, error) {
	t, err := domain.ParseCompType(e.Type)
	if err != nil {
		return DomainSpec{}, err
	}
	st, err := domain.ParseStatus(e.Status)
	if err != nil {
		return DomainSpec{}, fmt.Errorf("%s %d: %w", e.Type, e.ID, err)
	}
	spec := DomainSpec{
		Type:      t,
		ID:        e.ID,
		Status:    st,
		Fseq:      e.Fseq,
		InVersion: e.InVersion,
		Version:   e.Version,
	}
	for _, c := range e.Children {
		cs, err := c.spec()
		if err != nil {
			return DomainSpec{}, err
		}
		spec.Children = append(spec.Children, cs)
	}
	for _, te := range e.Targets {
		st, err := domain.ParseStatus(te.Status)
		if err != nil {
			return DomainSpec{}, fmt.Errorf("target %d: %w", te.ID, err)
		}
		spec.Targets = append(spec.Targets, TargetSpec{
			ID:        te.ID,
			Rank:      te.Rank,
			Status:    st,
			Fseq:      te.Fseq,
			InVersion: te.InVersion,
			Version:   te.Version,
		})
	}
	return spec, nil
}

// Encode renders the map back into its YAML document form.
func Encode(m *Map) ([]byte, error) {
	doc := Document{Version: m.version}
	if len(m.domains) > 0 {
		root := &m.domains[0]
		for i := range m.Children(root) {
			doc.Domains = append(doc.Domains, m.entry(&m.domains[root.FirstChild+i]))
		}
	}
	return yaml.Marshal(&doc)
}

func (m *Map) entry(d *Domain) DomainEntry {
	e := DomainEntry{
		Type:      d.Type.String(),
		ID:        d.ID,
		Status:    d.Status.String(),
		Fseq:      d.Fseq,
		InVersion: d.InVersion,
		Version:   d.Version,
	}
	if d.IsLeaf() {
		for _, t := range m.SubtreeTargets(d) {
			e.Targets = append(e.Targets, TargetEntry{
				ID:        t.ID,
				Rank:      t.Rank,
				Status:    t.Status.String(),
				Fseq:      t.Fseq,
				InVersion: t.InVersion,
				Version:   t.Version,
			})
		}
		return e
	}
	for i := 0; i < d.ChildCount; i++ {
		e.Children = append(e.Children, m.entry(&m.domains[d.FirstChild+i]))
	}
	return e
}
