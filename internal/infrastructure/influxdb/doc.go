// Package influxdb records Lutron zone and button history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing, and health monitoring.
//
// # Measurements
//
//   - zone_level: tags bridge_id, zone; field level
//   - button_action: tags bridge_id, serial, button, action; field count
//   - bridge_state: tags bridge_id, state; fields connected, telnet, devices
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteZoneLevel("0A1B2C3D", 7, 75)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched per batch_size and flush_interval; batch errors are delivered to
// the SetOnError callback. A nil or closed Client drops writes.
package influxdb
