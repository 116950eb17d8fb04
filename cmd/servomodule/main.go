// Package main implements the cartesian-servo module.
package main

import (
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"

	"github.com/viam-modules/cartesian-servo/servo"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: servo.Model},
	)
}
