// Package influxdb is a minimal InfluxDBWithTags reporter for a
// go-ethereum/metrics registry, reconstructing the shape of the teacher's
// own "github.com/holisticode/swarm/metrics/influxdb" package (referenced
// from metrics/flags.go but not present in this retrieval pack) against
// the real github.com/influxdata/influxdb client.
package influxdb

import (
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
	influxclient "github.com/influxdata/influxdb/client/v2"

	"github.com/holisticode/chunkfabric/chunkfabriclog"
)

// InfluxDBWithTags periodically snapshots every metric in r and writes it
// to an InfluxDB database, tagging every point with the given static tags
// plus the measurement prefix. It runs until the process exits; callers
// invoke it in a goroutine the way metrics/flags.go's Setup does.
func InfluxDBWithTags(r gethmetrics.Registry, interval time.Duration, addr, database, username, password, prefix string, tags map[string]string) {
	logger := chunkfabriclog.Root()

	c, err := influxclient.NewHTTPClient(influxclient.HTTPConfig{
		Addr:     addr,
		Username: username,
		Password: password,
	})
	if err != nil {
		logger.Error("influxdb: unable to create client", "err", err)
		return
	}
	defer c.Close()

	for range time.Tick(interval) {
		if err := send(c, r, database, prefix, tags); err != nil {
			logger.Warn("influxdb: unable to send metrics", "err", err)
		}
	}
}

func send(c influxclient.Client, r gethmetrics.Registry, database, prefix string, tags map[string]string) error {
	bp, err := influxclient.NewBatchPoints(influxclient.BatchPointsConfig{Database: database})
	if err != nil {
		return err
	}

	r.Each(func(name string, i interface{}) {
		fields := map[string]interface{}{}
		switch m := i.(type) {
		case gethmetrics.Counter:
			fields["count"] = m.Count()
		case gethmetrics.Gauge:
			fields["value"] = m.Value()
		case gethmetrics.Timer:
			fields["count"] = m.Count()
			fields["mean"] = m.Mean()
			fields["max"] = m.Max()
		default:
			return
		}
		pt, err := influxclient.NewPoint(prefix+name, tags, fields, time.Now())
		if err == nil {
			bp.AddPoint(pt)
		}
	})

	return c.Write(bp)
}
