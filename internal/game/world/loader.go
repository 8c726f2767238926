package world

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type yamlMapFile struct {
	Map yamlMap `yaml:"map"`
}

type yamlMap struct {
	Name   string      `yaml:"name"`
	Start  Location    `yaml:"start"`
	Floors []yamlFloor `yaml:"floors"`
	Spawns []yamlSpawn `yaml:"spawns"`
}

type yamlFloor struct {
	Z    int      `yaml:"z"`
	Rows []string `yaml:"rows"`
}

type yamlSpawn struct {
	Monster string   `yaml:"monster"`
	At      Location `yaml:"at"`
	Respawn string   `yaml:"respawn"`
}

// LoadMapFromFile reads a YAML map file.
//
// Precondition: path must point to a YAML map file.
// Postcondition: Returns a validated Map or a non-nil error.
func LoadMapFromFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file %s: %w", path, err)
	}
	m, err := LoadMapFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("loading map file %s: %w", path, err)
	}
	return m, nil
}

// LoadMapFromBytes parses a map document. Unknown fields are rejected.
func LoadMapFromBytes(data []byte) (*Map, error) {
	var file yamlMapFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing map YAML: %w", err)
	}
	ym := file.Map
	if ym.Name == "" {
		return nil, fmt.Errorf("map name must not be empty")
	}

	floors := make(map[int][]string, len(ym.Floors))
	for _, f := range ym.Floors {
		if _, dup := floors[f.Z]; dup {
			return nil, fmt.Errorf("map %q: duplicate floor z=%d", ym.Name, f.Z)
		}
		floors[f.Z] = f.Rows
	}

	spawns := make([]Spawn, 0, len(ym.Spawns))
	for _, s := range ym.Spawns {
		if s.Monster == "" {
			return nil, fmt.Errorf("map %q: spawn at %s has no monster", ym.Name, s.At)
		}
		respawn := time.Duration(0)
		if s.Respawn != "" {
			d, err := time.ParseDuration(s.Respawn)
			if err != nil {
				return nil, fmt.Errorf("map %q: spawn %q respawn: %w", ym.Name, s.Monster, err)
			}
			respawn = d
		}
		spawns = append(spawns, Spawn{Monster: s.Monster, At: s.At, Respawn: respawn})
	}
	return NewMap(ym.Name, ym.Start, floors, spawns)
}
