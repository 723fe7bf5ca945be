package code

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/esdraft/compiler/constpool"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("code: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// UnitImage is the decoded form of a finalized unit.
type UnitImage struct {
	Name      string               `cbor:"1,keyasint"`
	Super     string               `cbor:"2,keyasint,omitempty"`
	Source    SourceInfo           `cbor:"3,keyasint,omitempty"`
	Constants []constpool.Constant `cbor:"4,keyasint,omitempty"`
	Methods   []MethodImage        `cbor:"5,keyasint,omitempty"`
}

// MethodImage is the decoded form of one finalized method.
type MethodImage struct {
	Access    Access      `cbor:"1,keyasint"`
	Name      string      `cbor:"2,keyasint"`
	Desc      string      `cbor:"3,keyasint"`
	Code      []byte      `cbor:"4,keyasint"`
	MaxLocals int         `cbor:"5,keyasint"`
	MaxStack  int         `cbor:"6,keyasint"`
	Lines     []LineEntry `cbor:"7,keyasint,omitempty"`
	Handlers  []Handler   `cbor:"8,keyasint,omitempty"`
	Locals    []LocalVar  `cbor:"9,keyasint,omitempty"`
}

// Artifact is one encoded unit.
type Artifact struct {
	Name string `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// Archive is the output of a compilation: every unit in creation order plus
// the encoded extern pool, if any. Units[0] is always the main unit.
type Archive struct {
	Main   string     `cbor:"1,keyasint"`
	Units  []Artifact `cbor:"2,keyasint"`
	Extern []byte     `cbor:"3,keyasint,omitempty"`
}

// MarshalUnit serializes a unit image to CBOR bytes.
func MarshalUnit(u *UnitImage) ([]byte, error) {
	return cborEncMode.Marshal(u)
}

// UnmarshalUnit deserializes a unit image from CBOR bytes.
func UnmarshalUnit(data []byte) (*UnitImage, error) {
	var u UnitImage
	if err := cbor.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("code: unmarshal unit: %w", err)
	}
	return &u, nil
}

// MarshalConstants serializes a constant table to CBOR bytes.
func MarshalConstants(cs []constpool.Constant) ([]byte, error) {
	return cborEncMode.Marshal(cs)
}

// UnmarshalConstants deserializes a constant table from CBOR bytes.
func UnmarshalConstants(data []byte) ([]constpool.Constant, error) {
	var cs []constpool.Constant
	if err := cbor.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("code: unmarshal constants: %w", err)
	}
	return cs, nil
}

// Marshal serializes the archive to CBOR bytes.
func (a *Archive) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalArchive deserializes an archive from CBOR bytes.
func UnmarshalArchive(data []byte) (*Archive, error) {
	var a Archive
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("code: unmarshal archive: %w", err)
	}
	if len(a.Units) == 0 || a.Units[0].Name != a.Main {
		return nil, fmt.Errorf("code: archive %q has no main unit", a.Main)
	}
	return &a, nil
}

// Decode decodes every unit and the extern pool.
func (a *Archive) Decode() ([]*UnitImage, []constpool.Constant, error) {
	units := make([]*UnitImage, 0, len(a.Units))
	for _, art := range a.Units {
		u, err := UnmarshalUnit(art.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("unit %s: %w", art.Name, err)
		}
		units = append(units, u)
	}
	var extern []constpool.Constant
	if len(a.Extern) > 0 {
		cs, err := UnmarshalConstants(a.Extern)
		if err != nil {
			return nil, nil, err
		}
		extern = cs
	}
	return units, extern, nil
}

// MethodCount returns the total number of methods across all units.
func (a *Archive) MethodCount() (int, error) {
	units, _, err := a.Decode()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, u := range units {
		n += len(u.Methods)
	}
	return n, nil
}
