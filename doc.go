/*
Package weave embeds the WeaveLang interpreter: a small rule language for reactive,
sensor-driven behavior.

A WeaveLang program models one tick of a control loop. Tension rules compare a
sensed value against the internal model and fire host actions; drift and resolve
let model parameters wander and settle toward what the sensors report; the
coherence metric records how well the last resolved value matched reality.

# Usage

The host supplies a Sensor and an Actuator and calls Execute once per tick:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/weave"
		"github.com/aretw0/weave/pkg/ports"
	)

	func main() {
		interp := weave.New(
			weave.WithSensor(ports.SensorFunc(func(ctx context.Context, name string) float64 {
				return 4.0
			})),
			weave.WithActuator(ports.ActuatorFunc(func(ctx context.Context, name string, v [2]float64) {
				log.Printf("%s %v", name, v)
			})),
			weave.WithModel("threshold", 5.0),
		)

		src := "tension light < threshold => move(1.0, 0.0)\nresolve light.threshold"
		for i := 0; i < 10; i++ {
			if err := interp.Execute(context.Background(), src); err != nil {
				log.Fatal(err)
			}
		}
		log.Println(interp.Coherence())
	}

# Statements

  - field <name>: marks <name>.created = 1.0 in the model.
  - tension <sensor> <|> <param> => <action>(<v0>, <v1>): records |sensed - model| and fires the action when the comparison holds.
  - drift <param>: computes a random candidate around the current value (no state change).
  - resolve <sensor>.<param>: commits a drifted candidate when it lies within 2.0 of the sensed value.
  - metaweave <primitive> <action>: records a primitive binding.
  - extend <field> <param> <number> <bool>: sets <field>.<param> when the literal contains "true".
  - loop <n> { ... }: repeats a block n times.

Lines may end with ";" and "//" or "#" start a comment.

# Errors

Malformed programs fail with *domain.SyntaxError before any statement runs.
Loop nesting beyond the configured depth fails with *domain.ResourceError.
Both match sentinels (domain.ErrSyntax, domain.ErrResourceExhausted) via errors.Is.
*/
package weave
