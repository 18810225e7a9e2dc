// Package mqtt is claimd's outbound broker connection.
//
// claimd only publishes. Device lifecycle events go to
// <prefix>/devices/<unique_id>/<op>; the service's own presence is a
// retained document on <prefix>/system/status, backed by a broker-side will
// so a crash shows up as "offline / unexpected_disconnect".
//
// Payloads carry identifiers and timestamps only, never claim tokens or
// their hashes. Enable cfg.Broker.TLS outside a lab network.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.Publish(client.Topics().DeviceEvent("SN-1", "claimed"), payload, client.QoS(), false)
package mqtt
