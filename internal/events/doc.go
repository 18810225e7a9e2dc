// Package events fans claim service operations out to the message bus and
// the metrics store.
//
// Observers here never affect the outcome of an operation. MQTT publishing
// runs on its own goroutine behind a bounded queue; when the queue is full
// the event is dropped and counted.
package events
