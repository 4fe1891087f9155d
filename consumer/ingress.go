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
	"errors"
	"time"

	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/socket"
	log "github.com/sirupsen/logrus"
)

var errShortAdvertisement = errors.New("consumer: advertisement datagram too short")

// ingest decodes one received datagram and applies it to the registry,
// dispatching on the Root layer's vector (and, for Advertisement, the
// inner vector) as described in §4.G.
func (c *Consumer) ingest(pkt socket.Packet) {
	root, err := peekRoot(pkt.Data)
	if err != nil {
		log.Debugf("consumer: dropping undecodable datagram from %v: %v", pkt.Src, err)
		return
	}

	switch root.Vector {
	case protocol.VectorOTPTransform:
		c.ingestTransform(pkt, root)
	case protocol.VectorOTPAdvertisement:
		c.ingestAdvertisement(pkt, root)
	}
}

// peekRoot decodes only the Root layer header, leaving the rest of the
// datagram untouched, so the caller can branch on Vector/CID/Folio
// before committing to a full inner decode.
func peekRoot(data []byte) (protocol.Root, error) {
	s := protocol.NewStream(data)
	var r protocol.Root
	err := r.DecodeFrom(s)
	return r, err
}

func (c *Consumer) ingestTransform(pkt socket.Packet, root protocol.Root) {
	decoded, err := protocol.DecodeTransformMessage(pkt.Data)
	if err != nil {
		log.Debugf("consumer: dropping malformed transform datagram from %v: %v", pkt.Src, err)
		return
	}

	key := protocol.FolioKey{Sender: root.CID, System: decoded.Transform.System, Vector: protocol.VectorOTPTransform}
	complete := c.re.Accept(key, root.Folio, root.Page, root.LastPage, pkt.Data)
	if complete == nil {
		return
	}

	if time.Since(c.startedAt) < StartupWait {
		return
	}

	now := time.Now()
	for _, raw := range complete {
		pageMsg, err := protocol.DecodeTransformMessage(raw)
		if err != nil {
			continue
		}
		for _, pl := range pageMsg.Transform.Points {
			addr := pl.Address(pageMsg.Transform.System)
			c.reg.UpsertTransformPoint(root.CID, root.ComponentName, pkt.Src, addr, pl.Priority, pl.Modules, now)
		}
	}
}

func (c *Consumer) ingestAdvertisement(pkt socket.Packet, root protocol.Root) {
	inner, err := peekAdvertisementVector(pkt.Data)
	if err != nil {
		return
	}
	now := time.Now()

	switch inner {
	case protocol.VectorOTPNameAdvertisement:
		msg, err := protocol.DecodeNameAdvertisementMessage(pkt.Data)
		if err != nil || !msg.Response {
			return
		}
		for _, d := range msg.Descriptors {
			c.reg.UpsertPointName(root.CID, d.Address, d.Name, now)
		}
	case protocol.VectorOTPSystemAdvertisement:
		msg, err := protocol.DecodeSystemAdvertisementMessage(pkt.Data)
		if err != nil || !msg.Response {
			return
		}
		c.reg.ReplaceSystems(root.CID, root.ComponentName, pkt.Src, msg.Systems, now)
	case protocol.VectorOTPModuleAdvertisement:
		// a peer consumer's own module interest; not applied to our registry.
	}
}

func peekAdvertisementVector(data []byte) (protocol.AdvertisementVector, error) {
	s := protocol.NewStream(data)
	var r protocol.Root
	if err := r.DecodeFrom(s); err != nil {
		return 0, err
	}
	if s.Remaining() < 2 {
		return 0, errShortAdvertisement
	}
	return protocol.AdvertisementVector(s.PopUint16()), nil
}
