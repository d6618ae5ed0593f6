// Package host adapts a Linux host to the collaborator interfaces of the
// connectivity pipeline.
//
// Each adapter turns blocking system calls into scheduler futures so the
// cooperative tasks never block:
//
//   - Radio drives wpa_supplicant (optionally supervised through
//     internal/process) and watches the interface operstate for association
//     and link loss. It implements link.Radio.
//   - Stack reads interface flags, IPv4 addresses and the default gateway, and
//     resolves names with A queries. It implements netstack.Stack.
//   - Transport dials TCP with an idle timeout on the connection.
//   - Session is an MQTT v5 client session over an established connection.
//
// None of the adapters own retry policy; the tasks in internal/link,
// internal/netstack and internal/telemetry decide when to try again.
package host
