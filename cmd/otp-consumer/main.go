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

package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/esta-otp/otp/consumer"
	"github.com/esta-otp/otp/merger"
	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/registry"
	"github.com/esta-otp/otp/socket"
	"github.com/esta-otp/otp/stats"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	iface          string
	name           string
	systems        []int
	monitoringPort int
	ipv6           bool
	dscp           int
	logLevel       string
)

var rootCmd = &cobra.Command{
	Use:   "otp-consumer",
	Short: "merge Transform data for a set of OTP Systems",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&iface, "iface", "eth0", "interface to bind multicast sockets on")
	rootCmd.Flags().StringVar(&name, "name", "otp-consumer", "component name advertised to producers")
	rootCmd.Flags().IntSliceVar(&systems, "system", []int{1}, "OTP System number(s) to follow, repeatable")
	rootCmd.Flags().IntVar(&monitoringPort, "monitoringport", 8889, "port to serve JSON stats on (no Prometheus endpoint is served)")
	rootCmd.Flags().BoolVar(&ipv6, "ipv6", false, "use IPv6 multicast groups instead of IPv4")
	rootCmd.Flags().IntVar(&dscp, "dscp", 0, "DSCP value to mark outgoing datagrams with, 0 disables marking")
	rootCmd.Flags().StringVar(&logLevel, "loglevel", "info", "log level: debug, info, warning, error")
}

func run() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("unrecognized log level %q: %v", logLevel, err)
	}
	log.SetLevel(level)

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		log.Fatalf("resolving interface %q: %v", iface, err)
	}

	sock, err := socket.Bind(ifi)
	if err != nil {
		log.Fatalf("binding otp socket: %v", err)
	}
	defer sock.Close()

	if dscp != 0 {
		if err := sock.SetDSCP(dscp); err != nil {
			log.Warnf("setting DSCP %d: %v", dscp, err)
		}
	}

	otpSystems := make([]protocol.System, 0, len(systems))
	for _, s := range systems {
		sys := protocol.System(s)
		if !sys.Valid() {
			log.Fatalf("system %d out of range (1..200)", s)
		}
		otpSystems = append(otpSystems, sys)
	}

	events := make(chan registry.Event, 1024)
	reg := registry.New(events)
	go logEvents(events)

	cfg := consumer.Config{
		CID:     protocol.CID(uuid.New()),
		Name:    protocol.NewName(name),
		Systems: otpSystems,
		UnderstoodModules: []protocol.ModuleIdent{
			{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModulePosition},
			{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModulePositionVelAcc},
			{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModuleRotation},
			{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModuleRotationVelAcc},
			{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModuleScale},
			{ManufacturerID: protocol.ESTAManufacturerID, ModuleNumber: protocol.ModuleReferenceFrame},
		},
		IPv6: ipv6,
	}
	c := consumer.New(cfg, sock, reg)
	m := merger.New(reg)

	st := stats.NewJSONStats()
	go st.Start(monitoringPort)
	go reportCounts(st, reg)

	done := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(done)
	}()

	go m.Run(done)
	go reg.RunExpirySweeps(done)

	log.Infof("otp-consumer %s starting on %s, systems %v, startup wait %s", name, iface, systems, consumer.StartupWait)
	c.UpdateOTPMap()
	c.Run(done)
}

func logEvents(events <-chan registry.Event) {
	for e := range events {
		log.Debugf("registry event: %s %s %s", e.Kind, e.CID, e.Address)
	}
}

func reportCounts(st *stats.JSONStats, reg *registry.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		components, systemsCount, points := reg.Counts()
		st.SetComponents(components)
		st.SetSystems(systemsCount)
		st.SetPoints(points)
		st.Snapshot()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
