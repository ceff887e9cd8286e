package raytrace

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/gpu"
)

// sbtEntry is one shader record: an export name followed by its root arguments.
type sbtEntry struct {
	export string
	args   []uint64
}

// SBTLayout is the byte layout of a shader binding table. Sections are laid out
// ray generation first, then miss, then hit groups.
type SBTLayout struct {
	RayGenEntrySize   uint64
	MissEntrySize     uint64
	HitGroupEntrySize uint64

	RayGenSectionSize   uint64
	MissSectionSize     uint64
	HitGroupSectionSize uint64
}

// TotalSize is the sum of the three padded sections.
func (l SBTLayout) TotalSize() uint64 {
	return l.RayGenSectionSize + l.MissSectionSize + l.HitGroupSectionSize
}

// MissOffset is the byte offset of the miss section from the table start.
func (l SBTLayout) MissOffset() uint64 {
	return l.RayGenSectionSize
}

// HitGroupOffset is the byte offset of the hit-group section from the table start.
func (l SBTLayout) HitGroupOffset() uint64 {
	return l.RayGenSectionSize + l.MissSectionSize
}

// SBTBuilder collects shader records and lays them out into a shader binding table.
type SBTBuilder struct {
	rayGen []sbtEntry
	miss   []sbtEntry
	hit    []sbtEntry
}

// Reset drops every record added so far.
func (b *SBTBuilder) Reset() {
	b.rayGen = b.rayGen[:0]
	b.miss = b.miss[:0]
	b.hit = b.hit[:0]
}

// AddRayGenerationProgram appends a ray-generation record.
//
// Parameters:
//   - export: the export name of the program
//   - args: root arguments, each 8 bytes (descriptor handles or GPU addresses)
func (b *SBTBuilder) AddRayGenerationProgram(export string, args ...uint64) {
	b.rayGen = append(b.rayGen, sbtEntry{export: export, args: args})
}

// AddMissProgram appends a miss record.
func (b *SBTBuilder) AddMissProgram(export string, args ...uint64) {
	b.miss = append(b.miss, sbtEntry{export: export, args: args})
}

// AddHitGroup appends a hit-group record.
func (b *SBTBuilder) AddHitGroup(export string, args ...uint64) {
	b.hit = append(b.hit, sbtEntry{export: export, args: args})
}

// entrySize is the record stride of a section: the identifier plus the widest argument
// list of the section, rounded to the record alignment.
func entrySize(entries []sbtEntry) uint64 {
	maxArgs := 0
	for _, e := range entries {
		maxArgs = max(maxArgs, len(e.args))
	}
	return common.AlignUp(gpu.ShaderIdentifierSize+gpu.DescriptorArgumentSize*uint64(maxArgs), gpu.ShaderRecordAlignment)
}

func sectionSize(entries []sbtEntry) uint64 {
	return common.AlignUp(entrySize(entries)*uint64(len(entries)), gpu.ShaderTableAlignment)
}

// Layout computes the table layout of the records added so far.
//
// Returns:
//   - SBTLayout: entry and section sizes
func (b *SBTBuilder) Layout() SBTLayout {
	return SBTLayout{
		RayGenEntrySize:     entrySize(b.rayGen),
		MissEntrySize:       entrySize(b.miss),
		HitGroupEntrySize:   entrySize(b.hit),
		RayGenSectionSize:   sectionSize(b.rayGen),
		MissSectionSize:     sectionSize(b.miss),
		HitGroupSectionSize: sectionSize(b.hit),
	}
}

// Write fills dst with the records, resolving each export to its shader identifier.
//
// Parameters:
//   - dst: a mapped buffer of at least Layout().TotalSize() bytes
//   - props: the state object properties the identifiers come from
//
// Returns:
//   - error: if dst is too small or an export is unknown to the state object
func (b *SBTBuilder) Write(dst []byte, props gpu.StateObjectProperties) error {
	layout := b.Layout()
	if uint64(len(dst)) < layout.TotalSize() {
		return fmt.Errorf("shader binding table needs %d bytes, buffer holds %d", layout.TotalSize(), len(dst))
	}
	clear(dst[:layout.TotalSize()])
	sections := []struct {
		entries []sbtEntry
		offset  uint64
		stride  uint64
	}{
		{b.rayGen, 0, layout.RayGenEntrySize},
		{b.miss, layout.MissOffset(), layout.MissEntrySize},
		{b.hit, layout.HitGroupOffset(), layout.HitGroupEntrySize},
	}
	for _, s := range sections {
		for i, e := range s.entries {
			id := props.ShaderIdentifier(e.export)
			if len(id) < gpu.ShaderIdentifierSize {
				return fmt.Errorf("shader binding table: unknown export %q", e.export)
			}
			at := s.offset + uint64(i)*s.stride
			copy(dst[at:], id[:gpu.ShaderIdentifierSize])
			at += gpu.ShaderIdentifierSize
			for _, arg := range e.args {
				binary.LittleEndian.PutUint64(dst[at:], arg)
				at += gpu.DescriptorArgumentSize
			}
		}
	}
	return nil
}
