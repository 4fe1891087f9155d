/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package producer

import (
	"fmt"
	"os"

	"github.com/esta-otp/otp/protocol"
	yaml "gopkg.in/yaml.v2"
)

// PositionConfig is a Position module (ESTA 0x0001) in micrometres.
type PositionConfig struct {
	X int32 `yaml:"x"`
	Y int32 `yaml:"y"`
	Z int32 `yaml:"z"`
}

// RotationConfig is a Rotation module (ESTA 0x0003) in millionths of a degree.
type RotationConfig struct {
	X uint32 `yaml:"x"`
	Y uint32 `yaml:"y"`
	Z uint32 `yaml:"z"`
}

// PointConfig describes one statically-configured Point to produce.
type PointConfig struct {
	System   int             `yaml:"system"`
	Group    int             `yaml:"group"`
	Point    int             `yaml:"point"`
	Priority int             `yaml:"priority"`
	Name     string          `yaml:"name"`
	Position *PositionConfig `yaml:"position"`
	Rotation *RotationConfig `yaml:"rotation"`
}

// PointSetConfig is the top-level document a producer binary loads to
// populate its initial, static set of Points (§4.H names no wire format
// for this; it is local configuration, not part of the protocol).
type PointSetConfig struct {
	Points []PointConfig `yaml:"points"`
}

// LoadPointSetConfig reads and parses a YAML point-set file from path.
func LoadPointSetConfig(path string) (*PointSetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading point config %s: %w", path, err)
	}
	var cfg PointSetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing point config %s: %w", path, err)
	}
	return &cfg, nil
}

// Modules builds the protocol.Module list this PointConfig carries.
func (pc PointConfig) Modules() []protocol.Module {
	var modules []protocol.Module
	if pc.Position != nil {
		modules = append(modules, protocol.Module{
			ManufacturerID: protocol.ESTAManufacturerID,
			ModuleNumber:   protocol.ModulePosition,
			Additional:     &protocol.PositionModule{X: pc.Position.X, Y: pc.Position.Y, Z: pc.Position.Z},
		})
	}
	if pc.Rotation != nil {
		modules = append(modules, protocol.Module{
			ManufacturerID: protocol.ESTAManufacturerID,
			ModuleNumber:   protocol.ModuleRotation,
			Additional:     &protocol.RotationModule{X: pc.Rotation.X, Y: pc.Rotation.Y, Z: pc.Rotation.Z},
		})
	}
	return modules
}

// ApplyPointSet calls SetPoint for every point in cfg.
func (p *Producer) ApplyPointSet(cfg *PointSetConfig) error {
	for _, pc := range cfg.Points {
		system := protocol.System(pc.System)
		if !system.Valid() {
			return fmt.Errorf("point %s/%d/%d: system %d out of range", pc.Name, pc.Group, pc.Point, pc.System)
		}
		addr := protocol.Address{System: system, Group: protocol.Group(pc.Group), Point: protocol.Point(pc.Point)}
		p.SetPoint(system, addr, protocol.Priority(pc.Priority), protocol.NewName(pc.Name), pc.Modules())
	}
	return nil
}
