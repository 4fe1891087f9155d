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
	"encoding/binary"
	"net"
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/socket"
	log "github.com/sirupsen/logrus"
)

// innerVectorOffset is where the Advertisement wrapper's own Vector field
// begins, immediately after the fixed-size Root layer header.
const innerVectorOffset = protocol.RootHeaderSize

// handleAdvertisementRequest inspects an inbound datagram and, if it is a
// Name-Adv or System-Adv Request, schedules a unicast Response after a
// uniform-random [0, MaxReplyBackoff] delay (§4.H.3). Anything else
// (Transform, Module-Adv, a Response already) is ignored: this Producer
// does not consume those.
func (p *Producer) handleAdvertisementRequest(done <-chan struct{}, pkt socket.Packet) {
	if len(pkt.Data) < innerVectorOffset+2 {
		return
	}
	if protocol.RootVector(binary.BigEndian.Uint16(pkt.Data[0:2])) != protocol.VectorOTPAdvertisement {
		return
	}
	inner := protocol.AdvertisementVector(binary.BigEndian.Uint16(pkt.Data[innerVectorOffset : innerVectorOffset+2]))

	switch inner {
	case protocol.VectorOTPNameAdvertisement:
		req, err := protocol.DecodeNameAdvertisementMessage(pkt.Data)
		if err != nil || req.Response {
			return
		}
		p.scheduleReply(done, func() { p.sendNameAdvertisementResponse(pkt.Src) })
	case protocol.VectorOTPSystemAdvertisement:
		req, err := protocol.DecodeSystemAdvertisementMessage(pkt.Data)
		if err != nil || req.Response {
			return
		}
		p.scheduleReply(done, func() { p.sendSystemAdvertisementResponse(pkt.Src) })
	}
}

func (p *Producer) scheduleReply(done <-chan struct{}, send func()) {
	delay := time.Duration(p.randInt63n(int64(MaxReplyBackoff)))
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
			send()
		case <-done:
		}
	}()
}

func (p *Producer) sendNameAdvertisementResponse(dst net.IP) {
	msg := protocol.NewNameAdvertisementResponse(p.cfg.CID, p.cfg.Name, p.nextAdvertFolio())

	p.mu.Lock()
	for addr, sys := range p.allPointsLocked() {
		_ = msg.AddDescriptor(protocol.NameDescriptor{Address: addr, Name: sys.name})
	}
	p.mu.Unlock()

	if err := p.sock.SendTo(dst, msg.Encode()); err != nil {
		log.Errorf("producer: sending name advertisement response to %v: %v", dst, err)
	}
}

func (p *Producer) sendSystemAdvertisementResponse(dst net.IP) {
	msg := protocol.NewSystemAdvertisementResponse(p.cfg.CID, p.cfg.Name, p.nextAdvertFolio())

	p.mu.Lock()
	for sys := range p.systems {
		_ = msg.AddSystem(sys)
	}
	p.mu.Unlock()

	if err := p.sock.SendTo(dst, msg.Encode()); err != nil {
		log.Errorf("producer: sending system advertisement response to %v: %v", dst, err)
	}
}

// allPointsLocked returns every known (Address -> pointState) pair across
// all Systems. Callers must hold p.mu.
func (p *Producer) allPointsLocked() map[protocol.Address]*pointState {
	out := make(map[protocol.Address]*pointState)
	for _, sys := range p.systems {
		for addr, ps := range sys.points {
			out[addr] = ps
		}
	}
	return out
}
