// Package influxdb provides the time-series sink for claimd operation metrics.
//
// Every claim operation (issue, register, validate, claim) is recorded as a
// point in the claim_operations measurement, tagged by op and outcome. Writes
// are batched and non-blocking; a slow or absent InfluxDB never delays a
// claim. Asynchronous write failures are delivered to the SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("metrics write failed", "error", err) })
package influxdb
