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

	"github.com/esta-otp/otp/producer"
	"github.com/esta-otp/otp/protocol"
	"github.com/esta-otp/otp/socket"
	"github.com/esta-otp/otp/stats"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	iface             string
	name              string
	systems           []int
	transformInterval time.Duration
	monitoringPort    int
	ipv6              bool
	dscp              int
	pointConfigPath   string
	logLevel          string
)

var rootCmd = &cobra.Command{
	Use:   "otp-producer",
	Short: "announce Transform data for a set of OTP Systems",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&iface, "iface", "eth0", "interface to bind multicast sockets on")
	rootCmd.Flags().StringVar(&name, "name", "otp-producer", "component name advertised to consumers")
	rootCmd.Flags().IntSliceVar(&systems, "system", []int{1}, "OTP System number(s), range-checked and logged at startup; the Systems produced are those of the --points set, repeatable")
	rootCmd.Flags().DurationVar(&transformInterval, "transform-interval", 20*time.Millisecond, "Transform emission cadence, 1ms..50ms")
	rootCmd.Flags().IntVar(&monitoringPort, "monitoringport", 8888, "port to serve JSON stats on (no Prometheus endpoint is served)")
	rootCmd.Flags().BoolVar(&ipv6, "ipv6", false, "use IPv6 multicast groups instead of IPv4")
	rootCmd.Flags().IntVar(&dscp, "dscp", 0, "DSCP value to mark outgoing datagrams with, 0 disables marking")
	rootCmd.Flags().StringVar(&pointConfigPath, "points", "", "YAML file describing the static Point set to produce")
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

	cfg := producer.Config{
		CID:               protocol.CID(uuid.New()),
		Name:              protocol.NewName(name),
		TransformInterval: transformInterval,
		IPv6:              ipv6,
	}
	p := producer.New(cfg, sock)
	// Points are otherwise set through the library API; the --points file
	// is just a convenience for running this binary standalone.
	for _, s := range systems {
		sys := protocol.System(s)
		if !sys.Valid() {
			log.Fatalf("system %d out of range (1..200)", s)
		}
	}
	if pointConfigPath != "" {
		pointSet, err := producer.LoadPointSetConfig(pointConfigPath)
		if err != nil {
			log.Fatalf("loading point set: %v", err)
		}
		if err := p.ApplyPointSet(pointSet); err != nil {
			log.Fatalf("applying point set: %v", err)
		}
	}

	st := stats.NewJSONStats()
	go st.Start(monitoringPort)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			st.Snapshot()
		}
	}()

	done := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(done)
	}()

	log.Infof("otp-producer %s starting on %s, systems %v, startup delay %s", name, iface, systems, producer.StartupDelay)
	p.Run(done)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
