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

package consumer

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/registry"
	"github.com/esta-otp/otp/socket"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu       sync.Mutex
	sent     [][]byte
	incoming chan socket.Packet
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{incoming: make(chan socket.Packet, 16)}
}

func (f *fakeSocket) Join(net.IP) error  { return nil }
func (f *fakeSocket) Leave(net.IP) error { return nil }

func (f *fakeSocket) SendTo(_ net.IP, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeSocket) Recv() (socket.Packet, error) {
	pkt, ok := <-f.incoming
	if !ok {
		return socket.Packet{}, socket.ErrClosed
	}
	return pkt, nil
}

func (f *fakeSocket) Close() error { close(f.incoming); return nil }

func (f *fakeSocket) sentMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func testCID(b byte) protocol.CID {
	var c protocol.CID
	for i := range c {
		c[i] = b
	}
	return c
}

func samplePoint(group protocol.Group, point protocol.Point) protocol.PointLayer {
	return protocol.PointLayer{
		Vector:   protocol.VectorOTPModule,
		Priority: 100,
		Group:    group,
		Point:    point,
		Modules: []protocol.Module{{
			ManufacturerID: protocol.ESTAManufacturerID,
			ModuleNumber:   protocol.ModulePosition,
			Additional:     &protocol.PositionModule{X: 1, Y: 2, Z: 3},
		}},
	}
}

func TestIngestTransformUpdatesRegistryAfterStartupWait(t *testing.T) {
	events := make(chan registry.Event, 64)
	reg := registry.New(events)
	sock := newFakeSocket()
	c := New(Config{CID: testCID(1), Name: protocol.NewName("Consumer"), Systems: []protocol.System{1}}, sock, reg)
	c.startedAt = time.Now().Add(-StartupWait - time.Second)

	msg := protocol.NewTransformMessage(testCID(2), protocol.NewName("Producer"), 1, 1, 0, true)
	require.NoError(t, msg.AddPoint(samplePoint(1, 1)))
	pages, err := msg.Paginate()
	require.NoError(t, err)
	require.Len(t, pages, 1)

	c.ingest(socket.Packet{Data: pages[0], Src: net.ParseIP("10.0.0.5")})

	components, _, points := reg.Counts()
	require.Equal(t, int64(1), components)
	require.Equal(t, int64(1), points)
}

func TestIngestTransformIgnoredDuringStartupWait(t *testing.T) {
	events := make(chan registry.Event, 64)
	reg := registry.New(events)
	sock := newFakeSocket()
	c := New(Config{CID: testCID(3), Name: protocol.NewName("Consumer"), Systems: []protocol.System{1}}, sock, reg)
	// startedAt defaults to "now" in New, so we're still inside the startup wait.

	msg := protocol.NewTransformMessage(testCID(4), protocol.NewName("Producer"), 1, 1, 0, true)
	require.NoError(t, msg.AddPoint(samplePoint(1, 1)))
	pages, err := msg.Paginate()
	require.NoError(t, err)

	c.ingest(socket.Packet{Data: pages[0], Src: net.ParseIP("10.0.0.5")})

	components, _, points := reg.Counts()
	require.Equal(t, int64(0), components)
	require.Equal(t, int64(0), points)
}

func TestIngestNameAdvertisementResponseUpdatesName(t *testing.T) {
	events := make(chan registry.Event, 64)
	reg := registry.New(events)
	sock := newFakeSocket()
	c := New(Config{CID: testCID(5), Name: protocol.NewName("Consumer")}, sock, reg)

	addr := protocol.Address{System: 1, Group: 1, Point: 1}
	resp := protocol.NewNameAdvertisementResponse(testCID(6), protocol.NewName("Producer"), 1)
	require.NoError(t, resp.AddDescriptor(protocol.NameDescriptor{Address: addr, Name: protocol.NewName("Light-1")}))

	c.ingest(socket.Packet{Data: resp.Encode(), Src: net.ParseIP("10.0.0.6")})

	_, _, points := reg.Counts()
	require.Equal(t, int64(1), points)
}

func TestIngestSystemAdvertisementResponseReplacesSystems(t *testing.T) {
	events := make(chan registry.Event, 64)
	reg := registry.New(events)
	sock := newFakeSocket()
	c := New(Config{CID: testCID(7), Name: protocol.NewName("Consumer")}, sock, reg)

	resp := protocol.NewSystemAdvertisementResponse(testCID(8), protocol.NewName("Producer"), 1)
	require.NoError(t, resp.AddSystem(1))
	require.NoError(t, resp.AddSystem(2))

	c.ingest(socket.Packet{Data: resp.Encode(), Src: net.ParseIP("10.0.0.7")})

	_, systems, _ := reg.Counts()
	require.Equal(t, int64(2), systems)
}

func TestSendModuleAdvertisementEncodesConfiguredModules(t *testing.T) {
	sock := newFakeSocket()
	reg := registry.New(make(chan registry.Event, 16))
	c := New(Config{
		CID:               testCID(9),
		Name:              protocol.NewName("Consumer"),
		UnderstoodModules: []protocol.ModuleIdent{{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModulePosition}},
	}, sock, reg)

	c.sendModuleAdvertisement()

	sent := sock.sentMessages()
	require.Len(t, sent, 1)
	decoded, err := protocol.DecodeModuleAdvertisementMessage(sent[0])
	require.NoError(t, err)
	require.Equal(t, []protocol.ModuleIdent{{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModulePosition}}, decoded.Modules)
}

func TestUpdateOTPMapSendsBothRequests(t *testing.T) {
	sock := newFakeSocket()
	reg := registry.New(make(chan registry.Event, 16))
	c := New(Config{CID: testCID(10), Name: protocol.NewName("Consumer")}, sock, reg)

	c.UpdateOTPMap()

	sent := sock.sentMessages()
	require.Len(t, sent, 2)

	nameReq, err := protocol.DecodeNameAdvertisementMessage(sent[0])
	require.NoError(t, err)
	require.False(t, nameReq.Response)

	sysReq, err := protocol.DecodeSystemAdvertisementMessage(sent[1])
	require.NoError(t, err)
	require.False(t, sysReq.Response)
}
