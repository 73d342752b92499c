package schema

import (
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvrecord/internal/core"
)

// Built-in converter names.
const (
	ConverterUUID  = "uuid"
	ConverterUpper = "upper"
	ConverterLower = "lower"
	ConverterState = "state"
)

// NewRegistry returns a registry holding the built-in converters. It is not
// frozen, so callers may add their own before loading shapes.
func NewRegistry() *core.Registry {
	reg := core.NewRegistry()
	core.MustRegisterConverter(reg, ConverterUUID, uuid.Parse)
	core.MustRegisterConverter(reg, ConverterUpper, func(s string) (string, error) {
		return strings.ToUpper(s), nil
	})
	core.MustRegisterConverter(reg, ConverterLower, func(s string) (string, error) {
		return strings.ToLower(s), nil
	})
	core.MustRegisterConverter(reg, ConverterState, stateCode)
	return reg
}
