/*
Package incppect is a live, low-overhead inspection channel from a
running Go process to one or more WebSocket clients.

A host application registers named "getters" under printf-style paths
with integer placeholders ("node[%d].value"), each a closure exposing
some in-process variable or memory region as a byte slice. Connected
clients subscribe to concrete instantiations of these paths with the
placeholders bound to indices, and the server pushes the current bytes
to each subscriber on every tick, using a binary differential encoding
so unchanged regions cost almost nothing on the wire.

The core (the request table, the per-tick snapshot pipeline, the
XOR/run-length diff encoder, and the binary control protocol) is
transport-agnostic: it depends only on the Transport interface, which
the included WebSocket adapter implements over nhooyr.io/websocket.
*/
package incppect
