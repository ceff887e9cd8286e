package sim

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

type rootSignature struct {
	dev  *device
	desc gpu.RootSignatureDesc
}

var _ gpu.RootSignature = &rootSignature{}

func (d *device) CreateRootSignature(desc gpu.RootSignatureDesc) (gpu.RootSignature, error) {
	if err := d.check("CreateRootSignature"); err != nil {
		return nil, err
	}
	for i, p := range desc.Parameters {
		if p.Type == gpu.RootParameterDescriptorTable && len(p.Ranges) == 0 {
			return nil, fmt.Errorf("root signature %q: parameter %d is an empty descriptor table", desc.Label, i)
		}
		if p.Type != gpu.RootParameterDescriptorTable && len(p.Ranges) > 0 {
			return nil, fmt.Errorf("root signature %q: parameter %d is a root descriptor with ranges", desc.Label, i)
		}
	}
	return &rootSignature{dev: d, desc: desc}, nil
}

func (r *rootSignature) Desc() gpu.RootSignatureDesc {
	return r.desc
}

func (r *rootSignature) Release() {
	r.dev.journal.record(EventRelease, "rootsig:"+r.desc.Label, 0)
}

type pipelineState struct {
	dev  *device
	desc gpu.GraphicsPipelineDesc
}

var _ gpu.PipelineState = &pipelineState{}

func (d *device) CreateGraphicsPipelineState(desc *gpu.GraphicsPipelineDesc) (gpu.PipelineState, error) {
	if err := d.check("CreateGraphicsPipelineState"); err != nil {
		return nil, err
	}
	switch {
	case desc.RootSignature == nil:
		return nil, fmt.Errorf("pipeline %q has no root signature", desc.Label)
	case len(desc.VertexShader.Code) == 0:
		return nil, fmt.Errorf("pipeline %q has no vertex shader", desc.Label)
	case len(desc.PixelShader.Code) == 0:
		return nil, fmt.Errorf("pipeline %q has no pixel shader", desc.Label)
	case len(desc.RTVFormats) == 0 || len(desc.RTVFormats) > 8:
		return nil, fmt.Errorf("pipeline %q has %d render targets", desc.Label, len(desc.RTVFormats))
	case desc.Topology == gpu.PrimitiveTopologyUndefined:
		return nil, fmt.Errorf("pipeline %q has no topology", desc.Label)
	}
	if rs, ok := desc.RootSignature.(*rootSignature); ok && rs.desc.Local {
		return nil, fmt.Errorf("pipeline %q uses local root signature %q", desc.Label, rs.desc.Label)
	}
	return &pipelineState{dev: d, desc: *desc}, nil
}

func (p *pipelineState) Release() {
	p.dev.journal.record(EventRelease, "pso:"+p.desc.Label, 0)
}

// stateObject is a ray-tracing pipeline holding one identifier per export.
type stateObject struct {
	dev         *device
	desc        gpu.StateObjectDesc
	identifiers map[string][]byte
}

var (
	_ gpu.StateObject           = &stateObject{}
	_ gpu.StateObjectProperties = &stateObject{}
)

func (d *device) CreateStateObject(desc *gpu.StateObjectDesc) (gpu.StateObject, error) {
	if d.rtTier == gpu.RaytracingTierNotSupported {
		return nil, gpu.ErrUnsupported
	}
	if err := d.check("CreateStateObject"); err != nil {
		return nil, err
	}
	exports := make(map[string]bool)
	for _, lib := range desc.Libraries {
		if len(lib.Code) == 0 {
			return nil, fmt.Errorf("state object %q: library %q is empty", desc.Label, lib.Name)
		}
		for _, e := range lib.Exports {
			if exports[e] {
				return nil, fmt.Errorf("state object %q: export %q defined twice", desc.Label, e)
			}
			exports[e] = true
		}
	}
	for _, hg := range desc.HitGroups {
		if !exports[hg.ClosestHit] {
			return nil, fmt.Errorf("state object %q: hit group %q references unknown closest hit %q", desc.Label, hg.Name, hg.ClosestHit)
		}
		if hg.AnyHit != "" && !exports[hg.AnyHit] {
			return nil, fmt.Errorf("state object %q: hit group %q references unknown any hit %q", desc.Label, hg.Name, hg.AnyHit)
		}
		exports[hg.Name] = true
	}
	for _, a := range desc.Associations {
		if rs, ok := a.RootSignature.(*rootSignature); !ok || !rs.desc.Local {
			return nil, fmt.Errorf("state object %q: associations need a local root signature", desc.Label)
		}
		for _, e := range a.Exports {
			if !exports[e] {
				return nil, fmt.Errorf("state object %q: association references unknown export %q", desc.Label, e)
			}
		}
	}
	if desc.MaxRecursionDepth == 0 || desc.MaxRecursionDepth > 31 {
		return nil, fmt.Errorf("state object %q: recursion depth %d out of range", desc.Label, desc.MaxRecursionDepth)
	}

	so := &stateObject{dev: d, desc: *desc, identifiers: make(map[string][]byte, len(exports))}
	d.mu.Lock()
	for e := range exports {
		d.nextShader++
		id := make([]byte, gpu.ShaderIdentifierSize)
		binary.LittleEndian.PutUint64(id, d.nextShader)
		for i := 8; i < len(id); i++ {
			id[i] = byte(0xa5 ^ i)
		}
		so.identifiers[e] = id
	}
	d.mu.Unlock()
	return so, nil
}

func (s *stateObject) Properties() (gpu.StateObjectProperties, error) {
	return s, nil
}

func (s *stateObject) ShaderIdentifier(export string) []byte {
	id, ok := s.identifiers[export]
	if !ok {
		return nil
	}
	return append([]byte(nil), id...)
}

// export finds the export whose identifier is id.
func (s *stateObject) export(id []byte) (string, bool) {
	for name, known := range s.identifiers {
		if string(known) == string(id) {
			return name, true
		}
	}
	return "", false
}

func (s *stateObject) Release() {
	s.dev.journal.record(EventRelease, "stateobject:"+s.desc.Label, 0)
}
