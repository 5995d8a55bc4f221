// Package balancer implements the SURB flow controller described in
// spec.md §4.7: a PID controller that observes a pseudonym's SURB buffer
// level against a target setpoint and outputs how many SURB-carrying
// packets to emit in the next interval.
package balancer

import "math"

// Gains carries the three PID coefficients. Defaults match spec.md §4.7.
type Gains struct {
	Kp, Ki, Kd float64
}

// DefaultGains are the tuned coefficients spec.md §4.7 prescribes.
var DefaultGains = Gains{Kp: 0.6, Ki: 0.7, Kd: 0.2}

// Telemetry exposes the controller's internal state for observability,
// mirroring what an operator would want to graph alongside buffer levels
// (SPEC_FULL.md supplement: balancer telemetry).
type Telemetry struct {
	LastError  float64
	Integral   float64
	LastOutput float64
}

// Controller is a discrete-time PID controller with output clamped to
// [0, OutputLimit], used to convert "how far below target is this
// pseudonym's SURB buffer" into "how many replenishment packets to send
// this interval".
type Controller struct {
	gains       Gains
	setpoint    float64
	outputLimit float64

	telemetry Telemetry
}

// NewController constructs a Controller targeting setpoint buffered SURBs,
// with output capped at outputLimit packets per interval.
func NewController(setpoint, outputLimit uint64, gains Gains) *Controller {
	return &Controller{
		gains:       gains,
		setpoint:    float64(setpoint),
		outputLimit: float64(outputLimit),
	}
}

// Reconfigure updates the setpoint and output limit without disturbing the
// accumulated integral term, matching the "reconfigure target/limit without
// losing gains" behavior of the construction this was adapted from.
func (c *Controller) Reconfigure(setpoint, outputLimit uint64) {
	c.setpoint = float64(setpoint)
	c.outputLimit = float64(outputLimit)
}

// Bounds returns the controller's current (setpoint, outputLimit) pair.
func (c *Controller) Bounds() (setpoint, outputLimit uint64) {
	return uint64(c.setpoint), uint64(c.outputLimit)
}

// NextControlOutput samples the controller with the current buffer level
// and returns the number of SURB-carrying packets to emit this interval,
// clamped to [0, OutputLimit] (a negative output would mean "drain SURBs",
// which is not a traffic this balancer can emit).
func (c *Controller) NextControlOutput(currentBufferLevel uint64) uint64 {
	err := c.setpoint - float64(currentBufferLevel)

	c.telemetry.Integral += err
	derivative := err - c.telemetry.LastError
	c.telemetry.LastError = err

	output := c.gains.Kp*err + c.gains.Ki*c.telemetry.Integral + c.gains.Kd*derivative
	output = math.Max(0, math.Min(output, c.outputLimit))

	c.telemetry.LastOutput = output
	return uint64(output)
}

// Telemetry returns a snapshot of the controller's internal state.
func (c *Controller) Telemetry() Telemetry {
	return c.telemetry
}
