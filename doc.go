// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

/*
Package rdm implements Reliable Message Delivery, an ordered and acknowledged bidirectional message stream carried over a sequence of independent HTTP request/response exchanges.

Each peer numbers the messages it sends, starting at zero. An exchange carries the sender's acknowledgement cursor (the highest sequence number it has processed from the other side) together with every message it has not yet seen acknowledged. Messages are resent until acknowledged, so an aborted or failed exchange never loses data. Inbound batches are dispatched in sequence order, duplicates are skipped and a batch starting past the next expected sequence number is dropped.

A Channel is the client side. It keeps at most one canonical exchange outstanding, polls continuously so the server can push messages, batches messages queued while it is paused, and declares the connection lost after a number of consecutive failed exchanges.

A Server hosts Sessions, the server side. A Session holds an exchange open until it has something to send or its poll timeout elapses.

Messages are actions. Both peers understand noop, call, respond and close. A call invokes a Method registered in a Namespace and the peer answers with respond, which resolves the Deferred returned to the caller.

All state belonging to a Channel or a Session is confined to a Loop, a single goroutine running posted closures in order. Transports run their HTTP exchanges on their own goroutines and post the completion back to the loop.
*/
package rdm
