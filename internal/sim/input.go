package sim

// Input packs the four directional controls into one byte. The value is
// exchanged with remote peers every frame, so it must stay fixed-width
// and byte-comparable: two identical control states encode identically.
type Input uint8

const (
	MaskUp Input = 1 << iota
	MaskDown
	MaskLeft
	MaskRight
)

// missingSubstitute replaces inputs that never arrived. A lone turn-right
// makes a disconnected ship visibly spin instead of freezing in place.
const missingSubstitute = MaskRight

func (in Input) Up() bool    { return in&MaskUp != 0 }
func (in Input) Down() bool  { return in&MaskDown != 0 }
func (in Input) Left() bool  { return in&MaskLeft != 0 }
func (in Input) Right() bool { return in&MaskRight != 0 }

// Encode serializes the input to its single-byte wire form.
func (in Input) Encode() byte {
	return byte(in)
}

// DecodeInput recovers an input from its wire form. Undefined bits are
// preserved so a byte round-trips exactly.
func DecodeInput(b byte) Input {
	return Input(b)
}

// PlayerInput is one player's input for one frame. Missing marks the
// sentinel "no input available" state used for players whose data has not
// arrived or who have disconnected.
type PlayerInput struct {
	Mask    Input
	Missing bool
}

// MissingInput returns the sentinel input for an absent player.
func MissingInput() PlayerInput {
	return PlayerInput{Missing: true}
}

// Effective resolves the mask to advance with, substituting the spin for
// missing inputs.
func (p PlayerInput) Effective() Input {
	if p.Missing {
		return missingSubstitute
	}
	return p.Mask
}
