// Copyright 2018 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package metrics wires up process-wide counters for the replication
// protocol (chunks downloaded, swarm rebuilds, intake duration), adapted
// from the teacher's own metrics/flags.go: same go-ethereum/metrics
// registry, same optional InfluxDB export, same Prometheus HTTP handler,
// repointed at this system's counters instead of swarm's network/disk
// metrics. The disk-usage collector is dropped - spec §1 excludes a disk
// caching layer, so there is no data directory whose size is meaningful
// here.
package metrics

import (
	"net/http"
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"

	"github.com/holisticode/chunkfabric/chunkfabriclog"
	"github.com/holisticode/chunkfabric/metrics/influxdb"
)

// Options configures the optional metrics exporters.
type Options struct {
	Endpoint     string
	Database     string
	Username     string
	Password     string
	EnableExport bool
	Tags         map[string]string
}

// Setup enables the process-runtime metrics collectors and, if requested,
// starts pushing the default registry to InfluxDB and exposes the
// registry on a Prometheus HTTP handler - exactly what the teacher's own
// Setup does, just for this protocol's registry. It does nothing unless
// go-ethereum's metrics.Enabled is already true.
func Setup(o Options) {
	if !gethmetrics.Enabled {
		return
	}
	logger := chunkfabriclog.Root()
	logger.Info("Enabling chunkfabric metrics collection")

	go gethmetrics.CollectProcessMetrics(4 * time.Second)

	if o.EnableExport {
		logger.Info("Enabling chunkfabric metrics export to InfluxDB")
		go influxdb.InfluxDBWithTags(gethmetrics.DefaultRegistry, 10*time.Second, o.Endpoint, o.Database, o.Username, o.Password, "chunkfabric.", o.Tags)
	}
	http.Handle("/debug/metrics/prometheus", prometheus.Handler(gethmetrics.DefaultRegistry))
}

// Counters used throughout registry/tracker/downloader, registered lazily
// via GetOrRegisterCounter the same way storage/netstore.go does.
const (
	MetricChunksDownloaded = "downloader/chunks/downloaded"
	MetricSwarmRebuilds    = "registry/swarms/rebuilds"
	MetricIntakeDuration   = "tracker/intake/duration"
	MetricClientsFinished  = "tracker/clients/finished"
)

// Inc increments a lazily-registered counter by delta.
func Inc(name string, delta int64) {
	gethmetrics.GetOrRegisterCounter(name, nil).Inc(delta)
}

// UpdateTimer records a duration against a lazily-registered resetting
// timer, mirroring storage/netstore.go's
// metrics.GetOrRegisterResettingTimer(...).UpdateSince(start) pattern.
func UpdateTimer(name string, since time.Time) {
	gethmetrics.GetOrRegisterResettingTimer(name, nil).UpdateSince(since)
}
