/*
Package rays defines the ray value types that cross queues and the wire.

A Ray is plain data with fixed-width fields only; its wire form is a packed
little-endian field copy (WireSize bytes), so a batch payload is exactly
count x WireSize bytes with no framing inside. SchemaVersion is folded into
the transfer message tag so incompatible layouts fail loudly at dispatch
instead of decoding garbage.

The visited-instance set is a 64-bit bitmask keyed by instance id modulo 64.
It exists for cycle avoidance during top-level routing and is cleared
whenever a bounce restarts routing.
*/
package rays
