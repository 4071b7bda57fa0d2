package domain

// CloneZones deep-copies a zone list so the edit buffer and the snapshot
// never share slices or settings maps.
func CloneZones(zones []Zone) []Zone {
	if zones == nil {
		return nil
	}
	out := make([]Zone, len(zones))
	for i := range zones {
		out[i] = zones[i].Clone()
	}
	return out
}

func (z Zone) Clone() Zone {
	c := z
	if z.ID != nil {
		c.ID = Int64Ptr(*z.ID)
	}
	if z.Locations != nil {
		c.Locations = append([]Location{}, z.Locations...)
	}
	if z.Methods != nil {
		c.Methods = make([]Method, len(z.Methods))
		for i := range z.Methods {
			c.Methods[i] = z.Methods[i].Clone()
		}
	}
	return c
}

func (m Method) Clone() Method {
	c := m
	if m.ID != nil {
		c.ID = Int64Ptr(*m.ID)
	}
	c.Settings = cloneSettings(m.Settings)
	return c
}

func cloneSettings(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneSettings(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Clone deep-copies the zone trees and the editor cursor. The catalog and
// the last report are shared; neither is mutated after it is stored.
func (s *ShippingState) Clone() *ShippingState {
	c := *s
	c.ServerZones = CloneZones(s.ServerZones)
	c.Zones = CloneZones(s.Zones)
	if s.Editing != nil {
		e := *s.Editing
		if s.Editing.Original != nil {
			orig := s.Editing.Original.Clone()
			e.Original = &orig
		}
		c.Editing = &e
	}
	return &c
}
