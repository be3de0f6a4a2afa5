package weave_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/weave"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/aretw0/weave/pkg/ports"
)

// ExampleNew shows a host wiring a light sensor and a move actuator, then running one tick.
func ExampleNew() {
	interp := weave.New(
		weave.WithSensor(ports.SensorFunc(func(_ context.Context, name string) float64 {
			if name == "light" {
				return 4.0
			}
			return 0
		})),
		weave.WithActuator(ports.ActuatorFunc(func(_ context.Context, name string, v [2]float64) {
			fmt.Printf("act %s %v\n", name, v)
		})),
		weave.WithObserver(ports.ObserverFunc(func(_ context.Context, ev domain.Event) {
			fmt.Println(ev.Message())
		})),
		weave.WithModel("threshold", 5.0),
		weave.WithSeed(1),
	)

	src := `
field light
tension light < threshold => move(1.0, 0.0)
metaweave turn rotate
`
	if err := interp.Execute(context.Background(), src); err != nil {
		log.Fatal(err)
	}
	fmt.Println(interp.TensionHistory())
	fmt.Println(interp.Model("light.created"))

	// Output:
	// act move [1 0]
	// Tension: 1
	// Defined new primitive: turn as rotate
	// [1]
	// 1
}

// ExampleInterpreter_Check shows how syntax errors are reported.
func ExampleInterpreter_Check() {
	src := "tension light <> threshold => move(1.0)"
	err := weave.New().Check(src)
	fmt.Println(err)

	// Output:
	// syntax error at 1:16 in tension statement: expected parameter name, found ">"
}
