// Package channel implements the per-channel transform from a control value in [0, 254] to
// actuator output.
//
// The pipeline of one value is:
//
//	raw -> dual-rate (optional) -> acceleration filter (optional) -> mode mapping
//
// Servo channels look the value up in a 255-entry pulse table. The table is rebuilt in full
// whenever the center, rate, reverse flag or trim of the channel changes, so a lookup never
// sees a partially updated table. Digital channels switch on for any value except 0.
// H-bridge channels set a duty proportional to the distance from neutral and use the two
// following channels as direction lines.
package channel
