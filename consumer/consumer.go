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

/*
Package consumer implements the Consumer role (§4.G): it joins the
Transform groups for the Systems it cares about plus the shared
Advertisement group, feeds everything it decodes into a
registry.Registry, and periodically announces the modules it
understands. Grounded on the sptp client's periodic-tick/ingress split
(ptp/sptp/client/sptp.go).
*/
package consumer

import (
	"net"
	"sync"
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/registry"
	"github.com/esta-otp/otp/socket"
	log "github.com/sirupsen/logrus"
)

// StartupWait is how long after construction Transform data is ignored
// rather than trusted (§4.G).
const StartupWait = 12 * time.Second

// ModuleAdvertisementInterval is how often a Module-Advertisement is
// re-broadcast (§4.G).
const ModuleAdvertisementInterval = 10 * time.Second

// Config configures a Consumer's identity and the Systems it follows.
type Config struct {
	CID               protocol.CID
	Name              protocol.Name
	Systems           []protocol.System
	UnderstoodModules []protocol.ModuleIdent
	IPv6              bool
}

// Consumer ingests Transform and Advertisement traffic into a Registry.
type Consumer struct {
	cfg  Config
	sock socket.Socket
	reg  *registry.Registry
	re   *protocol.Reassembler

	startedAt time.Time

	mu          sync.Mutex
	moduleFolio protocol.Folio
	onDemandFolio protocol.Folio
}

// New builds a Consumer bound to sock and reg. Run does not begin
// ingesting until called, and the startup wait is measured from here.
func New(cfg Config, sock socket.Socket, reg *registry.Registry) *Consumer {
	return &Consumer{
		cfg:       cfg,
		sock:      sock,
		reg:       reg,
		re:        protocol.NewReassembler(),
		startedAt: time.Now(),
	}
}

func (c *Consumer) transformGroup(system protocol.System) net.IP {
	if c.cfg.IPv6 {
		return socket.TransformGroupIPv6(system)
	}
	return socket.TransformGroupIPv4(system)
}

func (c *Consumer) advertisementGroup() net.IP {
	if c.cfg.IPv6 {
		return socket.AdvertisementGroupIPv6
	}
	return socket.AdvertisementGroupIPv4
}

// Run blocks, joining the configured groups and ingesting datagrams
// and emitting the periodic Module-Advertisement until done is closed.
func (c *Consumer) Run(done <-chan struct{}) {
	if err := c.sock.Join(c.advertisementGroup()); err != nil {
		log.Errorf("consumer: joining advertisement group: %v", err)
	}
	for _, sys := range c.cfg.Systems {
		if err := c.sock.Join(c.transformGroup(sys)); err != nil {
			log.Errorf("consumer: joining transform group for system %d: %v", sys, err)
		}
	}

	incoming := make(chan socket.Packet, 256)
	go c.readLoop(done, incoming)

	ticker := time.NewTicker(ModuleAdvertisementInterval)
	defer ticker.Stop()
	c.sendModuleAdvertisement()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.sendModuleAdvertisement()
		case pkt := <-incoming:
			c.ingest(pkt)
		}
	}
}

func (c *Consumer) readLoop(done <-chan struct{}, out chan<- socket.Packet) {
	for {
		pkt, err := c.sock.Recv()
		if err != nil {
			return
		}
		select {
		case out <- pkt:
		case <-done:
			return
		}
	}
}

// UpdateOTPMap is the on-demand refresh the public API surface exposes
// (§4.G updateOTPMap()): it broadcasts a Name-Adv Request and a
// System-Adv Request.
func (c *Consumer) UpdateOTPMap() {
	c.sendNameAdvertisementRequest()
	c.sendSystemAdvertisementRequest()
}

func (c *Consumer) nextModuleFolio() protocol.Folio {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moduleFolio++
	return c.moduleFolio
}

func (c *Consumer) nextOnDemandFolio() protocol.Folio {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDemandFolio++
	return c.onDemandFolio
}

func (c *Consumer) sendModuleAdvertisement() {
	msg := protocol.NewModuleAdvertisementMessage(c.cfg.CID, c.cfg.Name, c.nextModuleFolio())
	for _, id := range c.cfg.UnderstoodModules {
		if err := msg.AddModule(id); err != nil {
			log.Warnf("consumer: module advertisement list full: %v", err)
			break
		}
	}
	if err := c.sock.SendTo(c.advertisementGroup(), msg.Encode()); err != nil {
		log.Errorf("consumer: sending module advertisement: %v", err)
	}
}

func (c *Consumer) sendNameAdvertisementRequest() {
	msg := protocol.NewNameAdvertisementRequest(c.cfg.CID, c.cfg.Name, c.nextOnDemandFolio())
	if err := c.sock.SendTo(c.advertisementGroup(), msg.Encode()); err != nil {
		log.Errorf("consumer: sending name advertisement request: %v", err)
	}
}

func (c *Consumer) sendSystemAdvertisementRequest() {
	msg := protocol.NewSystemAdvertisementRequest(c.cfg.CID, c.cfg.Name, c.nextOnDemandFolio())
	if err := c.sock.SendTo(c.advertisementGroup(), msg.Encode()); err != nil {
		log.Errorf("consumer: sending system advertisement request: %v", err)
	}
}
