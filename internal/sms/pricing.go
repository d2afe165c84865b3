package sms

// Segment budgets. Concatenated messages lose part of each segment to the
// user data header.
const (
	asciiSingleSegment   = 160
	asciiMultiSegment    = 153
	unicodeSingleSegment = 70
	unicodeMultiSegment  = 67
)

// Segments returns how many carrier segments msg occupies. Non-ASCII text
// is sent in a 16-bit encoding and gets the smaller budget.
func Segments(msg Message) int {
	single, multi := asciiSingleSegment, asciiMultiSegment
	if !msg.IsASCII() {
		single, multi = unicodeSingleSegment, unicodeMultiSegment
	}
	n := msg.RuneCount()
	if n <= single {
		return 1
	}
	return (n + multi - 1) / multi
}

// SegmentPricer charges a flat price per segment.
type SegmentPricer struct {
	PricePerSegment float64
}

func (p SegmentPricer) CalculateCost(msg Message) float64 {
	return float64(Segments(msg)) * p.PricePerSegment
}

// UnitPricer charges per byte of message text.
type UnitPricer struct {
	PricePerUnit float64
}

func (p UnitPricer) CalculateCost(msg Message) float64 {
	return float64(msg.Length()) * p.PricePerUnit
}
