package inspect

import (
	"errors"

	"github.com/signalsfoundry/atmos-simulator/devices"
	"github.com/signalsfoundry/atmos-simulator/gas"
	"github.com/signalsfoundry/atmos-simulator/internal/scenario"
	sim "github.com/signalsfoundry/atmos-simulator/internal/sim/state"
	"github.com/signalsfoundry/atmos-simulator/kb"
	"github.com/signalsfoundry/atmos-simulator/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrInvalidRequest is returned for requests with missing or malformed fields.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, sim.ErrEntityNotFound),
		errors.Is(err, sim.ErrTileNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, model.ErrBadEntity),
		errors.Is(err, gas.ErrUnknownGas),
		errors.Is(err, scenario.ErrUnknownKind),
		errors.Is(err, devices.ErrNotATank),
		errors.Is(err, devices.ErrBadPressure):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrComponentMissing),
		errors.Is(err, devices.ErrLocked),
		errors.Is(err, devices.ErrSlotEmpty),
		errors.Is(err, devices.ErrNoGasPort):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, devices.ErrSlotOccupied),
		errors.Is(err, sim.ErrAlreadyLoaded):
		return status.Error(codes.AlreadyExists, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
