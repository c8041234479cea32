package inspect

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/atmos-simulator/devices"
	sim "github.com/signalsfoundry/atmos-simulator/internal/sim/state"
	"github.com/signalsfoundry/atmos-simulator/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func field(req *structpb.Struct, key string) (*structpb.Value, bool) {
	if req == nil {
		return nil, false
	}
	v, ok := req.GetFields()[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func stringField(req *structpb.Struct, key string) (string, error) {
	s, ok, err := optionalString(req, key)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
	}
	return s, nil
}

func optionalString(req *structpb.Struct, key string) (string, bool, error) {
	v, ok := field(req, key)
	if !ok {
		return "", false, nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", false, fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, key)
	}
	return s.StringValue, true, nil
}

func optionalNumber(req *structpb.Struct, key string) (float64, bool, error) {
	v, ok := field(req, key)
	if !ok {
		return 0, false, nil
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber {
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
		return 0, false, fmt.Errorf("%w: %s must be finite", ErrInvalidRequest, key)
	}
	return n.NumberValue, true, nil
}

func optionalBool(req *structpb.Struct, key string) (bool, bool, error) {
	v, ok := field(req, key)
	if !ok {
		return false, false, nil
	}
	b, isBool := v.GetKind().(*structpb.Value_BoolValue)
	if !isBool {
		return false, false, fmt.Errorf("%w: %s must be a bool", ErrInvalidRequest, key)
	}
	return b.BoolValue, true, nil
}

func intField(req *structpb.Struct, key string) (int, error) {
	n, ok, err := optionalNumber(req, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
	}
	if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, key)
	}
	return int(n), nil
}

func mixtureValue(r sim.MixtureReport) map[string]any {
	moles := make(map[string]any, len(r.Moles))
	for g, n := range r.Moles {
		moles[g] = n
	}
	return map[string]any{
		"volume":      r.Volume,
		"pressure":    r.Pressure,
		"temperature": r.Temperature,
		"total_moles": r.TotalMoles,
		"moles":       moles,
	}
}

func nodeList(nodes []sim.NodeReport) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		v := mixtureValue(n.MixtureReport)
		v["owner"] = n.Owner.String()
		v["owner_name"] = n.OwnerName
		v["node"] = n.Node
		v["net"] = n.Net
		out = append(out, v)
	}
	return out
}

func stepValue(tick, created, removed, shared, reactions int) map[string]any {
	return map[string]any{
		"tick":          tick,
		"nets_created":  created,
		"nets_removed":  removed,
		"tiles_shared":  shared,
		"net_reactions": reactions,
	}
}

func canisterValue(w *devices.World, e model.Entity) (map[string]any, error) {
	ui, err := w.CanisterUI(e)
	if err != nil {
		return nil, err
	}
	price, err := w.Price(e)
	if err != nil {
		return nil, err
	}
	c, _ := w.Canisters.Get(e)
	return map[string]any{
		"entity":               e.String(),
		"name":                 ui.Name,
		"pressure":             ui.Pressure,
		"port_status":          ui.PortStatus,
		"tank_label":           ui.TankLabel,
		"tank_pressure":        ui.TankPressure,
		"release_pressure":     ui.ReleasePressure,
		"release_valve":        ui.ReleaseValve,
		"min_release_pressure": ui.MinReleasePressure,
		"max_release_pressure": ui.MaxReleasePressure,
		"locked":               c.Locked,
		"price":                price,
	}, nil
}
