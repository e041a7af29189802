// Package influxdb provides the read-side InfluxDB v2 client for Kasa Monitor.
//
// Device readings land in InfluxDB via the ingestion pipeline; this
// package only queries them. It manages:
//   - Connection lifecycle with token authentication
//   - Health monitoring via ping
//   - Flux query execution for the history engine
//
// The client follows the same lifecycle pattern as other infrastructure
// components:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	defer client.Close()
//	result, err := client.QueryFlux(ctx, flux)
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package influxdb
