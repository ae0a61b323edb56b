/*
Package emitter transports finished segment documents.

UDPEmitter speaks the trace daemon protocol: one datagram per document, each
prefixed by a JSON header line. HTTPEmitter uploads gzip-compressed batches to
a collector through a retrying client, a circuit breaker and a rate limiter.
AsyncEmitter puts a bounded queue in front of either so request goroutines
never wait on the network. LogEmitter writes documents to the log.

	udp, err := emitter.NewUDPEmitter(cfg.DaemonAddress, emitter.WithLogger(logger))
	if err != nil {
		return err
	}
	em := emitter.NewAsyncEmitter(udp, emitter.DefaultQueueSize, emitter.WithLogger(logger))
	defer em.Close()
*/
package emitter
