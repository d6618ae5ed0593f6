// Package netstack watches IP bring-up on top of the WiFi link.
//
// Two scheduler tasks share a Stack:
//
//   - Runner polls the stack on a short fixed interval for the life of the
//     process and fires a change signal whenever link or address state moves.
//   - Monitor waits for the link to come up, then for an address, and fires
//     the one-shot Ready signal. After that it keeps tracking the link and
//     clears the recorded address when the link drops.
//
// Ready is the gate the telemetry publisher waits on before its first name
// resolution. It stays fired once set.
//
// By default the monitor waits forever for the first bring-up. With a
// non-zero BringUpTimeout it fails with ErrBringUpTimeout instead, which is
// fatal to the scheduler so a process supervisor can restart the device.
package netstack
