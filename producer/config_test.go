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
	"os"
	"path/filepath"
	"testing"

	"github.com/esta-otp/otp/protocol"
	"github.com/stretchr/testify/require"
)

const samplePointSetYAML = `
points:
  - system: 1
    group: 2
    point: 3
    priority: 150
    name: Moving Light 1
    position:
      x: 1000
      y: 2000
      z: 3000
    rotation:
      x: 90000000
      y: 0
      z: 0
  - system: 1
    group: 2
    point: 4
    priority: 100
    name: Moving Light 2
`

func TestLoadPointSetConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePointSetYAML), 0o600))

	cfg, err := LoadPointSetConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Points, 2)
	require.Equal(t, "Moving Light 1", cfg.Points[0].Name)
	require.Equal(t, int32(1000), cfg.Points[0].Position.X)
	require.Equal(t, uint32(90000000), cfg.Points[0].Rotation.X)
	require.Nil(t, cfg.Points[1].Position)
}

func TestApplyPointSetPopulatesProducer(t *testing.T) {
	sock := newFakeSocket()
	p := New(Config{CID: testCID(1), Name: protocol.NewName("Producer")}, sock)

	cfg := &PointSetConfig{Points: []PointConfig{
		{System: 1, Group: 2, Point: 3, Priority: 150, Name: "Moving Light 1",
			Position: &PositionConfig{X: 1000, Y: 2000, Z: 3000}},
	}}
	require.NoError(t, p.ApplyPointSet(cfg))

	p.mu.Lock()
	defer p.mu.Unlock()
	sys, ok := p.systems[1]
	require.True(t, ok)
	addr := protocol.Address{System: 1, Group: 2, Point: 3}
	ps, ok := sys.points[addr]
	require.True(t, ok)
	require.Equal(t, protocol.Priority(150), ps.priority)
	require.Len(t, ps.modules, 1)
}

func TestApplyPointSetRejectsInvalidSystem(t *testing.T) {
	sock := newFakeSocket()
	p := New(Config{CID: testCID(2), Name: protocol.NewName("Producer")}, sock)

	cfg := &PointSetConfig{Points: []PointConfig{{System: 0, Group: 1, Point: 1}}}
	require.Error(t, p.ApplyPointSet(cfg))
}
