package snapshot

import (
	"slices"

	"github.com/skdltmxn/classsort/host"
)

// ToHostDataVar converts a snapshot data variable.
func ToHostDataVar(dv DataVar) host.DataVar {
	out := host.DataVar{
		Name:    dv.Name,
		Address: uint64(dv.Address),
		Width:   dv.Width,
		Type: host.Type{
			Class:        host.ParseTypeClass(dv.Type.Class),
			Element:      dv.Type.Element,
			ElementWidth: dv.Type.ElementWidth,
			Count:        dv.Type.Count,
		},
	}
	if dv.Values != nil {
		out.Values = make([]uint64, len(dv.Values))
		for i, v := range dv.Values {
			out.Values[i] = uint64(v)
		}
	}
	return out
}

// FromHostDataVar is the inverse of ToHostDataVar.
func FromHostDataVar(dv host.DataVar) DataVar {
	out := DataVar{
		Name:    dv.Name,
		Address: Addr(dv.Address),
		Width:   dv.Width,
		Type: Type{
			Class:        dv.Type.Class.String(),
			Element:      dv.Type.Element,
			ElementWidth: dv.Type.ElementWidth,
			Count:        dv.Type.Count,
		},
	}
	if dv.Values != nil {
		out.Values = make([]Addr, len(dv.Values))
		for i, v := range dv.Values {
			out.Values[i] = Addr(v)
		}
	}
	return out
}

// SortedAddrs returns addrs ascending as snapshot addresses.
func SortedAddrs(addrs []uint64) []Addr {
	if len(addrs) == 0 {
		return nil
	}
	sorted := slices.Sorted(slices.Values(addrs))
	out := make([]Addr, len(sorted))
	for i, a := range sorted {
		out[i] = Addr(a)
	}
	return out
}
