package resolve

// Provenance tracks where the type of a value comes from.
type Provenance int

const (
	// ProvenanceUnknown - the value was never seen.
	ProvenanceUnknown Provenance = iota

	// ProvenanceDeclared - the value was declared, its type is only known through constraints.
	ProvenanceDeclared

	// ProvenanceConstant - the type was constructed from a concrete host value (e.g. a model input or a
	// literal).
	ProvenanceConstant

	// ProvenanceBound - the type was given explicitly.
	ProvenanceBound

	// ProvenanceReused - the type is a copy of a type resolved elsewhere (e.g. the signature of a function
	// already resolved).
	ProvenanceReused

	// ProvenanceComputed - the type was inferred by the rule of the operation producing the value.
	ProvenanceComputed
)

// String returns a human-readable name for the provenance.
func (p Provenance) String() string {
	switch p {
	case ProvenanceUnknown:
		return "unknown"
	case ProvenanceDeclared:
		return "declared"
	case ProvenanceConstant:
		return "constant"
	case ProvenanceBound:
		return "bound"
	case ProvenanceReused:
		return "reused"
	case ProvenanceComputed:
		return "computed"
	default:
		return "invalid"
	}
}

// IsInput returns true if the type of the value was given from outside, rather than inferred.
func (p Provenance) IsInput() bool {
	return p == ProvenanceConstant || p == ProvenanceBound || p == ProvenanceReused
}
