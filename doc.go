// Package relay provides an ephemeral publish/subscribe relay for signed
// events.
//
// Clients publish events and open subscriptions described by filters. A
// subscription first receives every stored event that matches, then an
// end-of-stored-events marker, then matching events live as they arrive.
// Nothing is durable: the whole store is discarded on a fixed schedule, and
// subscriptions survive the purge.
//
// Key features:
//   - Publish stores, acknowledges and routes an event as one unit
//   - Subscriptions replace atomically when a client reuses an id
//   - Per-connection send queues so one slow client never stalls routing
//   - JSON Schema validation of every inbound frame
//   - Prometheus metrics and OpenTelemetry spans around each unit of work
//
// Quick start:
//
//	r, err := relay.New(
//	    relay.WithStore(memory.New()),
//	    relay.WithPurgeInterval(time.Hour),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Start(ctx)
//	defer r.Stop(ctx)
//
//	http.ListenAndServe(":8080", ws.NewServer(r))
package relay
