package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlSchema is the on-disk shape of a declarative schema file.
type yamlSchema struct {
	Entities  []yamlEntity `yaml:"entities"`
	Languages []string     `yaml:"languages"`
}

type yamlEntity struct {
	Name   string      `yaml:"name"`
	Fields []yamlField `yaml:"fields"`
}

type yamlField struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"`
	Required     bool          `yaml:"required"`
	Unique       bool          `yaml:"unique"`
	Primary      bool          `yaml:"primary"`
	Multilingual bool          `yaml:"multilingual"`
	Default      any           `yaml:"default"`
	MaxLength    int           `yaml:"maxLength"`
	Of           string        `yaml:"of"`
	Relation     *yamlRelation `yaml:"relation"`
}

type yamlRelation struct {
	Target string `yaml:"target"`
	Kind   string `yaml:"kind"`
	Weak   bool   `yaml:"weak"`
}

// LoadFile reads a declarative schema file and builds a Registry.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a declarative YAML schema and builds a Registry.
func Load(r io.Reader) (*Registry, error) {
	var doc yamlSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	entities := make([]*Entity, 0, len(doc.Entities))
	for _, ye := range doc.Entities {
		e := &Entity{Name: ye.Name, Fields: make([]Field, 0, len(ye.Fields))}
		for _, yf := range ye.Fields {
			f, err := yf.field(ye.Name)
			if err != nil {
				return nil, err
			}
			e.Fields = append(e.Fields, f)
		}
		entities = append(entities, e)
	}
	var opts []Option
	if len(doc.Languages) > 0 {
		opts = append(opts, WithLanguages(doc.Languages...))
	}
	return NewRegistry(entities, opts...)
}

func (yf yamlField) field(entity string) (Field, error) {
	t, err := ParseFieldType(yf.Type)
	if err != nil {
		return Field{}, fmt.Errorf("schema: %s.%s: %w", entity, yf.Name, err)
	}
	f := Field{
		Name:         yf.Name,
		Type:         t,
		Required:     yf.Required,
		Unique:       yf.Unique,
		Primary:      yf.Primary,
		Multilingual: yf.Multilingual,
		Default:      yf.Default,
		MaxLength:    yf.MaxLength,
	}
	switch t {
	case TypeList:
		if yf.Of == "" {
			return Field{}, fmt.Errorf("schema: %s.%s: list field requires an element type", entity, yf.Name)
		}
		of, err := ParseFieldType(yf.Of)
		if err != nil {
			return Field{}, fmt.Errorf("schema: %s.%s: %w", entity, yf.Name, err)
		}
		if of == TypeList || of == TypeRelation {
			return Field{}, fmt.Errorf("schema: %s.%s: list element must be a scalar type", entity, yf.Name)
		}
		f.ListOf = of
	case TypeRelation:
		if yf.Relation == nil {
			return Field{}, fmt.Errorf("schema: %s.%s: relation field requires relation metadata", entity, yf.Name)
		}
		kind, err := ParseRelationKind(yf.Relation.Kind)
		if err != nil {
			return Field{}, fmt.Errorf("schema: %s.%s: %w", entity, yf.Name, err)
		}
		f.Relation = &Relation{Target: yf.Relation.Target, Kind: kind, Weak: yf.Relation.Weak}
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeEnum, TypeTimestamp, TypeText, TypeObject:
		if yf.Relation != nil {
			return Field{}, fmt.Errorf("schema: %s.%s: relation metadata on non-relation field", entity, yf.Name)
		}
	}
	return f, nil
}
